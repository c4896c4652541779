package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	appconfig "kilometers.ai/boot/internal/application/config"
	argvdomain "kilometers.ai/boot/internal/core/domain/argv"
	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	configports "kilometers.ai/boot/internal/core/ports/config"
	configinfra "kilometers.ai/boot/internal/infrastructure/config"
	"kilometers.ai/boot/internal/infrastructure/logging"
	"kilometers.ai/boot/internal/infrastructure/plugins"
	"kilometers.ai/boot/internal/infrastructure/server"
)

// ServerModuleName names a plugin function passed to Build directly.
const ServerModuleName = "serverModule"

// ModuleLoader resolves a plugin path relative to dir.
type ModuleLoader interface {
	Load(ctx context.Context, dir, path string) (*plugins.Descriptor, error)
}

// ServerOptions are programmatic server settings for one build. Zero fields
// fall back to the tool flags.
type ServerOptions struct {
	Logger          *configdomain.LoggerConfig // highest precedence logger fields
	SkipOverride    bool                       // register the plugin on the root instance
	BodyLimit       int64
	PluginTimeout   time.Duration
	CloseGraceDelay time.Duration
}

// Builder turns an argument vector into a server instance with the plugin
// registered.
//
// The zero value is usable: it reads and writes the process environment,
// resolves paths against the current directory and loads both module
// formats.
type Builder struct {
	Env     configports.Env
	Dir     string
	Loader  ModuleLoader
	EnvFile configports.EnvFileLoader
	Logger  *slog.Logger
}

// resolved returns a copy of b with defaults filled in.
func (b *Builder) resolved() (*Builder, error) {
	out := *b
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Env == nil {
		out.Env = configinfra.NewProcessEnv()
	}
	if out.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, plugindomain.NewStageError(plugindomain.StageEnv, err)
		}
		out.Dir = wd
	}
	if out.EnvFile == nil {
		out.EnvFile = configinfra.NewDotEnvLoader(out.Logger)
	}
	if out.Loader == nil {
		out.Loader = plugins.NewLoader(out.Env, out.Logger)
	}
	return &out, nil
}

// Build runs the pipeline without listening. When module is non-nil it is
// registered instead of the plugin named in argv.
func (b *Builder) Build(ctx context.Context, argv []string, overrides plugindomain.Options, opts ServerOptions, module server.PluginFunc) (*server.App, error) {
	app, _, err := b.build(ctx, argv, overrides, opts, module)
	return app, err
}

// Listen runs the pipeline and binds the address from the tool flags. The
// instance is returned only once it is accepting connections.
func (b *Builder) Listen(ctx context.Context, argv []string, overrides plugindomain.Options, opts ServerOptions) (*server.App, error) {
	app, tool, err := b.build(ctx, argv, overrides, opts, nil)
	if err != nil {
		return nil, err
	}

	if err := app.Listen(ctx, tool.ListenAddr()); err != nil {
		app.Close(context.WithoutCancel(ctx))
		return nil, plugindomain.NewStageError(plugindomain.StageListen, err)
	}
	return app, nil
}

func (b *Builder) build(ctx context.Context, argv []string, overrides plugindomain.Options, opts ServerOptions, module server.PluginFunc) (_ *server.App, _ appconfig.ToolOptions, err error) {
	var tool appconfig.ToolOptions

	b, err = b.resolved()
	if err != nil {
		return nil, tool, err
	}
	log := b.Logger

	log.Debug("pipeline stage", "stage", plugindomain.StageEnv, "dir", b.Dir)
	if _, err := b.EnvFile.Load(ctx, b.Dir, b.Env); err != nil {
		return nil, tool, plugindomain.NewStageError(plugindomain.StageEnv, err)
	}

	log.Debug("pipeline stage", "stage", plugindomain.StageArgv, "argv", argv)
	spec := argvdomain.SplitWith(argv, appconfig.PluginPathIndex)
	tool, err = appconfig.ParseToolArgs(spec.ToolArgs, b.Env)
	if err != nil {
		return nil, tool, plugindomain.NewStageError(plugindomain.StageArgv, err)
	}

	log.Debug("pipeline stage", "stage", plugindomain.StageLoad, "plugin", spec.PluginPath)
	desc, err := b.descriptor(ctx, spec.PluginPath, module)
	if err != nil {
		return nil, tool, plugindomain.NewStageError(plugindomain.StageLoad, err)
	}
	defer func() {
		if err != nil {
			desc.Release()
		}
	}()

	log.Debug("pipeline stage", "stage", plugindomain.StageOptions, "plugin", desc.Name)
	merged, err := b.mergeOptions(ctx, desc, spec, overrides)
	if err != nil {
		return nil, tool, plugindomain.NewStageError(plugindomain.StageOptions, err)
	}

	log.Debug("pipeline stage", "stage", plugindomain.StageLogger, "plugin", desc.Name)
	src := appconfig.LoggerSources{CLI: tool.ExplicitLogger(), Override: opts.Logger}
	if tool.Options {
		src.Plugin = desc.Logger
	} else if desc.Logger != nil {
		log.Debug("plugin logger configuration ignored without --options", "plugin", desc.Name)
	}
	logCfg, err := appconfig.NewAggregator(log).MergeLogger(src)
	if err != nil {
		return nil, tool, plugindomain.NewStageError(plugindomain.StageLogger, err)
	}

	log.Debug("pipeline stage", "stage", plugindomain.StageServer, "level", logCfg.Level)
	instanceLogger, err := logging.New(logCfg)
	if err != nil {
		return nil, tool, plugindomain.NewStageError(plugindomain.StageServer, err)
	}
	app := server.New(server.Config{
		Logger:          instanceLogger,
		BodyLimit:       firstNonZero(opts.BodyLimit, tool.BodyLimit),
		PluginTimeout:   firstNonZero(opts.PluginTimeout, tool.PluginTimeout),
		CloseGraceDelay: firstNonZero(opts.CloseGraceDelay, tool.CloseGraceDelay),
	})
	app.OnClose(func(context.Context) error { return desc.Release() })

	skip := opts.SkipOverride || merged.SkipOverride
	log.Debug("pipeline stage", "stage", plugindomain.StageRegister, "plugin", desc.Name, "prefix", tool.Prefix, "skipOverride", skip)
	err = app.Register(ctx, desc.Plugin, merged.Options, server.RegisterOptions{Prefix: tool.Prefix, SkipOverride: skip})
	if err != nil {
		app.Close(context.WithoutCancel(ctx))
		return nil, tool, plugindomain.NewStageError(plugindomain.StageRegister, err)
	}
	return app, tool, nil
}

func (b *Builder) descriptor(ctx context.Context, path string, module server.PluginFunc) (*plugins.Descriptor, error) {
	if module != nil {
		return &plugins.Descriptor{Name: ServerModuleName, Plugin: module}, nil
	}
	return b.Loader.Load(ctx, b.Dir, path)
}

func (b *Builder) mergeOptions(ctx context.Context, desc *plugins.Descriptor, spec argvdomain.Spec, overrides plugindomain.Options) (appconfig.MergedOptions, error) {
	var defaults plugindomain.Options
	if desc.Options != nil {
		var err error
		defaults, err = desc.Options(ctx, spec.ToolArgs)
		if err != nil {
			return appconfig.MergedOptions{}, fmt.Errorf("%w: options factory: %w", plugindomain.ErrOptionsParse, err)
		}
	}

	if len(desc.Flags) == 0 && len(spec.PluginArgs) > 0 {
		b.Logger.Warn("plugin declares no flags, ignoring plugin arguments", "plugin", desc.Name, "args", spec.PluginArgs)
	}
	parsed, err := appconfig.ParsePluginArgs(desc.Flags, spec.PluginArgs)
	if err != nil {
		return appconfig.MergedOptions{}, err
	}

	return appconfig.NewAggregator(b.Logger).MergeOptions(defaults, parsed, overrides), nil
}

func firstNonZero[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
