package server

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-Id"

var routeMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true,
}

// Route is a declared method and path.
type Route struct {
	Method string
	Path   string
}

func newRouter(c *core) chi.Router {
	r := chi.NewRouter()
	r.Use(c.requestLogger, c.recoverer, c.bodyLimit)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Route %s:%s not found", req.Method, req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed for %s", req.Method, req.URL.Path))
	})
	return r
}

// Route declares handler for method and p, relative to the scope prefix.
func (a *App) Route(method, p string, handler http.HandlerFunc) error {
	method = strings.ToUpper(method)
	if !routeMethods[method] {
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidRoute, method)
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: path %q must start with '/'", ErrInvalidRoute, p)
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s %s", ErrInvalidRoute, method, p)
	}

	full := joinPath(a.prefix, p)

	c := a.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for _, r := range c.routes {
		if r.Method == method && r.Path == full {
			return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, full)
		}
	}
	c.router.Method(method, full, handler)
	c.routes = append(c.routes, Route{Method: method, Path: full})
	return nil
}

func (a *App) Get(p string, h http.HandlerFunc) error    { return a.Route(http.MethodGet, p, h) }
func (a *App) Post(p string, h http.HandlerFunc) error   { return a.Route(http.MethodPost, p, h) }
func (a *App) Put(p string, h http.HandlerFunc) error    { return a.Route(http.MethodPut, p, h) }
func (a *App) Patch(p string, h http.HandlerFunc) error  { return a.Route(http.MethodPatch, p, h) }
func (a *App) Delete(p string, h http.HandlerFunc) error { return a.Route(http.MethodDelete, p, h) }

// Routes lists declared routes in declaration order.
func (a *App) Routes() []Route {
	c := a.core
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Route, len(c.routes))
	copy(out, c.routes)
	return out
}

func joinPath(prefix, p string) string {
	if prefix == "" {
		if p == "" {
			return "/"
		}
		return p
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	joined := path.Join(prefix, p)
	if p != "/" && strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

func (c *core) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		log := c.logger.With("reqId", reqID)
		log.Info("incoming request", "method", r.Method, "url", r.URL.RequestURI())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Info("request completed", "statusCode", status, "responseTime", time.Since(start).String())
	})
}

func (c *core) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				c.logger.Error("handler panicked", "error", fmt.Sprint(rec), "url", r.URL.RequestURI())
				WriteError(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (c *core) bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, c.cfg.BodyLimit)
		}
		next.ServeHTTP(w, r)
	})
}
