package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	"kilometers.ai/boot/internal/infrastructure/logging"
)

const (
	DefaultBodyLimit       = 1 << 20
	DefaultCloseGraceDelay = 500 * time.Millisecond
	DefaultPluginTimeout   = 10 * time.Second
)

// PluginFunc is a unit of routes and decorations registered into an App.
type PluginFunc func(ctx context.Context, app *App, opts plugindomain.Options) error

// Config holds App settings. Zero values select the defaults.
type Config struct {
	Logger          *logging.Logger
	BodyLimit       int64
	CloseGraceDelay time.Duration
	PluginTimeout   time.Duration
}

// RegisterOptions controls how a plugin is attached.
type RegisterOptions struct {
	Prefix       string // route prefix for the plugin scope
	SkipOverride bool   // share decorations with the registering scope
}

// Shared state of every scope derived from one New call.
type core struct {
	cfg     Config
	logger  *logging.Logger
	router  chi.Router
	handler http.Handler

	mu       sync.Mutex
	routes   []Route
	onClose  []func(context.Context) error
	srv      *http.Server
	listener net.Listener
	closed   bool

	listening atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// App is a server instance as seen from one registration scope.
type App struct {
	core   *core
	scope  *scope
	prefix string
}

// New creates an App that is not yet listening.
func New(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	if cfg.CloseGraceDelay <= 0 {
		cfg.CloseGraceDelay = DefaultCloseGraceDelay
	}
	if cfg.PluginTimeout <= 0 {
		cfg.PluginTimeout = DefaultPluginTimeout
	}

	c := &core{cfg: cfg, logger: cfg.Logger}
	c.router = newRouter(c)
	c.handler = c.router

	return &App{core: c, scope: newScope(nil)}
}

// Log returns the instance logger.
func (a *App) Log() *slog.Logger {
	return a.core.logger.Logger
}

// LogLevel returns the name of the instance log level.
func (a *App) LogLevel() string {
	return a.core.logger.Level()
}

// Prefix returns the route prefix of this scope.
func (a *App) Prefix() string {
	return a.prefix
}

// Decorate attaches a named value to this scope.
func (a *App) Decorate(name string, value interface{}) error {
	return a.scope.set(name, value)
}

// Decoration looks name up in this scope and its ancestors.
func (a *App) Decoration(name string) (interface{}, bool) {
	return a.scope.get(name)
}

// HasDecorator reports whether name is visible from this scope.
func (a *App) HasDecorator(name string) bool {
	_, ok := a.scope.get(name)
	return ok
}

// OnClose adds a hook run by Close, most recent first.
func (a *App) OnClose(fn func(context.Context) error) {
	a.core.mu.Lock()
	defer a.core.mu.Unlock()
	a.core.onClose = append(a.core.onClose, fn)
}

// Register runs fn against a scope derived from a. The call is bounded by the
// plugin timeout; a plugin that outlives it is reported as failed.
func (a *App) Register(ctx context.Context, fn PluginFunc, opts plugindomain.Options, ro RegisterOptions) error {
	if fn == nil {
		return fmt.Errorf("%w: plugin is nil", plugindomain.ErrPluginRegistration)
	}
	if opts == nil {
		opts = plugindomain.Options{}
	}

	target := a.child(ro)

	ctx, cancel := context.WithTimeout(ctx, a.core.cfg.PluginTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("plugin panicked: %v", r)
			}
		}()
		done <- fn(ctx, target, opts)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", plugindomain.ErrPluginRegistration, err)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w (%s)", plugindomain.ErrPluginRegistration, ErrPluginTimeout, a.core.cfg.PluginTimeout)
		}
		return fmt.Errorf("%w: %w", plugindomain.ErrPluginRegistration, ctx.Err())
	}
}

func (a *App) child(ro RegisterOptions) *App {
	s := a.scope
	if !ro.SkipOverride {
		s = newScope(a.scope)
	}
	return &App{core: a.core, scope: s, prefix: joinPath(a.prefix, ro.Prefix)}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.core.handler
}
