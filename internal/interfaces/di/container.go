package di

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"kilometers.ai/boot/internal/application/services"
	configports "kilometers.ai/boot/internal/core/ports/config"
	configinfra "kilometers.ai/boot/internal/infrastructure/config"
	"kilometers.ai/boot/internal/infrastructure/plugins"
	"kilometers.ai/boot/internal/interfaces/cli"
)

// Container holds all application dependencies
type Container struct {
	Env      configports.Env
	Dir      string
	Logger   *slog.Logger
	LogLevel *slog.LevelVar

	Loader  *plugins.Loader
	EnvFile *configinfra.DotEnvLoader
	Builder *services.Builder

	CLIContainer *cli.CLIContainer
}

// Options customise NewContainer. Zero values select the process
// environment, the current directory and stderr.
type Options struct {
	Env    configports.Env
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// NewContainer wires the builder and the CLI.
func NewContainer(opts Options) (*Container, error) {
	if opts.Env == nil {
		opts.Env = configinfra.NewProcessEnv()
	}
	if opts.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		opts.Dir = wd
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: level}))

	c := &Container{
		Env:      opts.Env,
		Dir:      opts.Dir,
		Logger:   logger,
		LogLevel: level,
		Loader:   plugins.NewLoader(opts.Env, logger),
		EnvFile:  configinfra.NewDotEnvLoader(logger),
	}
	c.Builder = &services.Builder{
		Env:     c.Env,
		Dir:     c.Dir,
		Loader:  c.Loader,
		EnvFile: c.EnvFile,
		Logger:  logger,
	}
	c.CLIContainer = &cli.CLIContainer{
		Builder:  c.Builder,
		Env:      c.Env,
		Logger:   logger,
		LogLevel: level,
		Out:      opts.Stdout,
		Err:      opts.Stderr,
	}
	return c, nil
}
