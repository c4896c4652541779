package domain

// Re-export pipeline errors and stage names so callers can inspect build
// failures with errors.Is and StageOf.

import plugindomain "kilometers.ai/boot/internal/core/domain/plugin"

type StageError = plugindomain.StageError

var (
	ErrModuleNotFound     = plugindomain.ErrModuleNotFound
	ErrModuleLoad         = plugindomain.ErrModuleLoad
	ErrModuleFormat       = plugindomain.ErrModuleFormat
	ErrOptionsParse       = plugindomain.ErrOptionsParse
	ErrArgs               = plugindomain.ErrArgs
	ErrPluginRegistration = plugindomain.ErrPluginRegistration
	ErrListen             = plugindomain.ErrListen
)

const (
	StageEnv      = plugindomain.StageEnv
	StageArgv     = plugindomain.StageArgv
	StageLoad     = plugindomain.StageLoad
	StageOptions  = plugindomain.StageOptions
	StageLogger   = plugindomain.StageLogger
	StageServer   = plugindomain.StageServer
	StageRegister = plugindomain.StageRegister
	StageListen   = plugindomain.StageListen

	SkipOverrideKey = plugindomain.SkipOverrideKey
)

// StageOf returns the pipeline stage recorded in err, or "".
func StageOf(err error) string {
	return plugindomain.StageOf(err)
}
