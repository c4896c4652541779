package plugindomain

import (
	"errors"
	"fmt"
)

// Pipeline errors
var (
	ErrModuleNotFound     = fmt.Errorf("module not found")
	ErrModuleLoad         = fmt.Errorf("module failed to load")
	ErrModuleFormat       = fmt.Errorf("module format mismatch")
	ErrOptionsParse       = fmt.Errorf("invalid plugin options")
	ErrArgs               = fmt.Errorf("invalid arguments")
	ErrPluginRegistration = fmt.Errorf("plugin registration failed")
	ErrListen             = fmt.Errorf("listen failed")
)

// Pipeline stages, in execution order.
const (
	StageEnv      = "env"
	StageArgv     = "argv"
	StageLoad     = "load"
	StageOptions  = "options"
	StageLogger   = "logger"
	StageServer   = "server"
	StageRegister = "register"
	StageListen   = "listen"
)

// StageError identifies the pipeline stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with its stage. A nil err yields nil.
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the failing stage recorded in err, or "".
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
