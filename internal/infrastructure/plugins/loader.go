package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	configports "kilometers.ai/boot/internal/core/ports/config"
	"kilometers.ai/boot/internal/infrastructure/server"
)

// OptionsFactory produces the plugin-declared default options.
type OptionsFactory func(ctx context.Context, toolArgs []string) (plugindomain.Options, error)

// Descriptor is a loaded plugin module. Every format yields the same shape.
type Descriptor struct {
	Name    string
	Path    string
	Format  plugindomain.Format
	Plugin  server.PluginFunc
	Options OptionsFactory             // nil when the module exports no defaults
	Logger  *configdomain.LoggerConfig // nil when the module exports no logger config
	Flags   []plugindomain.FlagSpec

	releaseOnce sync.Once
	release     func() error
	releaseErr  error
}

// Release frees resources held by the module (such as its interpreter). It
// is safe to call more than once.
func (d *Descriptor) Release() error {
	d.releaseOnce.Do(func() {
		if d.release != nil {
			d.releaseErr = d.release()
		}
	})
	return d.releaseErr
}

// Strategy loads one module format.
type Strategy interface {
	Format() plugindomain.Format

	// Load returns an error wrapping plugindomain.ErrModuleFormat only when
	// the file is not written in this format.
	Load(ctx context.Context, path string) (*Descriptor, error)
}

// Loader resolves a path to a Descriptor, trying each strategy in order and
// moving to the next one only on a format mismatch. Nothing is cached: every
// call reads and evaluates the file again.
type Loader struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewLoader returns a loader for the script format followed by the manifest
// format. Both read environment variables through env.
func NewLoader(env configports.Env, logger *slog.Logger) *Loader {
	return NewLoaderWithStrategies(logger, NewScriptStrategy(env), NewManifestStrategy(env))
}

func NewLoaderWithStrategies(logger *slog.Logger, strategies ...Strategy) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{strategies: strategies, logger: logger}
}

// Load resolves path against dir and loads the module.
func (l *Loader) Load(ctx context.Context, dir, path string) (*Descriptor, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no plugin path given", plugindomain.ErrModuleNotFound)
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(dir, resolved)
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", plugindomain.ErrModuleNotFound, resolved)
	}

	var mismatches []error
	for i, s := range l.strategies {
		desc, err := s.Load(ctx, resolved)
		if err == nil {
			l.logger.Debug("plugin module loaded", "plugin", desc.Name, "path", resolved, "format", desc.Format)
			return desc, nil
		}

		if !errors.Is(err, plugindomain.ErrModuleFormat) {
			return nil, loadError(resolved, append(mismatches, err)...)
		}
		mismatches = append(mismatches, fmt.Errorf("%s: %w", s.Format(), err))

		if i < len(l.strategies)-1 {
			l.logger.Debug("module format mismatch, trying next format", "path", resolved, "format", s.Format(), "error", err)
		}
	}

	return nil, loadError(resolved, mismatches...)
}

func loadError(path string, errs ...error) error {
	return fmt.Errorf("%w: %s: %w", plugindomain.ErrModuleLoad, path, errors.Join(errs...))
}

func moduleName(path, declared string) string {
	if declared != "" {
		return declared
	}
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
