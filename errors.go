package redlite

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("redlite: database is closed")

// OpenError reports a failure to open a database or connect to a server.
// No handle exists after an OpenError.
type OpenError struct {
	Target string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("redlite: open %s: %v", e.Target, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// EngineError is a failure reported by the storage engine. The message is
// the engine's last-error string, read immediately after the failing call.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return "redlite: " + e.Message
}

// MarshalError reports a value that could not be converted at the foreign
// boundary, e.g. a numeric result the engine returned as a malformed string.
// It is distinct from EngineError: the engine succeeded, the translation
// did not.
type MarshalError struct {
	What string
	Err  error
}

func (e *MarshalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("redlite: marshal %s: %v", e.What, e.Err)
	}
	return "redlite: marshal " + e.What
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}

// ModeError is returned when a command is invoked under the Mode that does
// not support it (e.g. Vacuum over a server connection).
type ModeError struct {
	Command string
	Mode    Mode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("redlite: %s is not supported in %s mode", e.Command, e.Mode)
}

// engineErr reads the engine's last-error slot and wraps it. The slot holds
// only the most recent failure, so this must run before any other foreign
// call on the same handle.
func (db *EmbeddedDB) engineErr() error {
	msg := db.lib.lastError()
	if msg == "" {
		return &EngineError{Message: "unknown engine error"}
	}
	return &EngineError{Message: msg}
}
