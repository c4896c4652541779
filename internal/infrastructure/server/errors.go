package server

import "fmt"

var (
	ErrClosed           = fmt.Errorf("server is closed")
	ErrAlreadyListening = fmt.Errorf("server is already listening")
	ErrDecoratorPresent = fmt.Errorf("decorator already present")
	ErrDuplicateRoute   = fmt.Errorf("route already declared")
	ErrInvalidRoute     = fmt.Errorf("invalid route")
	ErrPluginTimeout    = fmt.Errorf("plugin did not finish before the plugin timeout")
)
