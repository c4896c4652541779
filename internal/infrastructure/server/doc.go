// Package server is the HTTP framework that plugins are registered into.
//
// An App wraps a chi router and an http.Server. Plugins receive an App scoped
// to their registration: decorations they add and routes they declare stay
// inside that scope (and its children) unless the plugin is registered with
// SkipOverride, in which case it shares the decorations of the scope that
// registered it.
//
// Example usage:
//
//	app := server.New(server.Config{Logger: logger})
//	defer app.Close(ctx)
//
//	err := app.Register(ctx, func(ctx context.Context, app *server.App, opts plugindomain.Options) error {
//	    return app.Get("/", func(w http.ResponseWriter, r *http.Request) {
//	        server.WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})
//	    })
//	}, nil, server.RegisterOptions{})
//
//	res, err := app.Inject(ctx, server.InjectRequest{URL: "/"})
package server
