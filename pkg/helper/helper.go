// Package helper builds server instances from plugin files the same way the
// kmboot command does, for use in plugin tests.
//
//	app, err := helper.Build(ctx, helper.Args("./plugin.lua -- --hello world"), nil)
//	if err != nil { ... }
//	defer app.Close(ctx)
//	res, err := app.Inject(ctx, ports.InjectRequest{URL: "/"})
//
// The package level functions use the process environment and the current
// directory. Use a Builder with an isolated environment for tests that load
// .env files.
package helper

import (
	"context"

	"kilometers.ai/boot/internal/application/services"
	argvdomain "kilometers.ai/boot/internal/core/domain/argv"
	configinfra "kilometers.ai/boot/internal/infrastructure/config"
	"kilometers.ai/boot/pkg/ports"
)

// Builder is the pipeline behind Build and Listen.
type Builder = services.Builder

// Env is an isolated variable store for Builder.Env.
type Env = configinfra.MapEnv

// NewEnv returns an isolated environment seeded with vars.
func NewEnv(vars map[string]string) *Env {
	return configinfra.NewMapEnv(vars)
}

// Args splits a raw command line on whitespace.
func Args(line string) []string {
	return argvdomain.Tokenize(line)
}

// Build loads the plugin named by argv[0] and registers it without
// listening. overrides take precedence over every other option source.
func Build(ctx context.Context, argv []string, overrides ports.Options, opts ...ports.ServerOptions) (*ports.App, error) {
	return new(Builder).Build(ctx, argv, overrides, serverOptions(opts), nil)
}

// BuildModule registers module instead of loading a plugin file. argv still
// supplies the tool flags.
func BuildModule(ctx context.Context, argv []string, overrides ports.Options, module ports.PluginFunc, opts ...ports.ServerOptions) (*ports.App, error) {
	return new(Builder).Build(ctx, argv, overrides, serverOptions(opts), module)
}

// Listen is Build followed by binding the address from the tool flags.
func Listen(ctx context.Context, argv []string, overrides ports.Options, opts ...ports.ServerOptions) (*ports.App, error) {
	return new(Builder).Listen(ctx, argv, overrides, serverOptions(opts))
}

func serverOptions(opts []ports.ServerOptions) ports.ServerOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return ports.ServerOptions{}
}
