package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
)

// Listen binds addr and serves in the background. When the bind fails no
// resource is left open.
func (a *App) Listen(ctx context.Context, addr string) error {
	c := a.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.listener != nil {
		return ErrAlreadyListening
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %w", plugindomain.ErrListen, err)
	}

	srv := &http.Server{
		Handler:           c.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(c.logger.Handler(), slog.LevelError),
	}
	c.listener = ln
	c.srv = srv
	c.listening.Store(true)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("server stopped", "error", err)
		}
		c.listening.Store(false)
	}()

	c.logger.Info("Server listening", "url", "http://"+ln.Addr().String())
	return nil
}

// Listening reports whether the instance is accepting connections.
func (a *App) Listening() bool {
	return a.core.listening.Load()
}

// Addr returns the bound address, or nil before Listen.
func (a *App) Addr() net.Addr {
	c := a.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Close stops the server and runs the close hooks. It is safe to call more
// than once and on an instance that never listened.
func (a *App) Close(ctx context.Context) error {
	c := a.core
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		srv := c.srv
		hooks := c.onClose
		c.mu.Unlock()

		var errs []error
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.CloseGraceDelay)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
				if !errors.Is(err, context.DeadlineExceeded) {
					errs = append(errs, err)
				}
			}
			cancel()
			c.listening.Store(false)
		}

		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}

		if err := c.logger.Close(); err != nil {
			errs = append(errs, err)
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
