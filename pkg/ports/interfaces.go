package ports

// Re-export the types a plugin author needs to write and test plugins in Go.
// This allows external modules to use them without importing internal
// packages.

import (
	"kilometers.ai/boot/internal/application/services"
	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	"kilometers.ai/boot/internal/infrastructure/server"
)

type App = server.App
type PluginFunc = server.PluginFunc
type RegisterOptions = server.RegisterOptions
type Route = server.Route
type InjectRequest = server.InjectRequest
type InjectResponse = server.InjectResponse

type Options = plugindomain.Options
type FlagSpec = plugindomain.FlagSpec

type ServerOptions = services.ServerOptions
type LoggerConfig = configdomain.LoggerConfig
type Redact = configdomain.Redact
