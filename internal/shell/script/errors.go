package script

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is returned when an init script is not a list of simple calls.
	ErrParse = errors.New("invalid init script")

	// ErrSubcommand is returned when a $(...) substitution fails.
	ErrSubcommand = errors.New("init script substitution failed")

	// ErrUnknownAccount is returned when SOURCE_ACCOUNT names an account that
	// does not exist.
	ErrUnknownAccount = errors.New("unknown source account")
)

// ScriptError describes a failed init script.
type ScriptError struct {
	Contract string
	Line     uint
	Message  string
	Stderr   string
	Err      error
}

func (e *ScriptError) Error() string {
	msg := fmt.Sprintf("init script for %q", e.Contract)
	if e.Line > 0 {
		msg += fmt.Sprintf(", line %d", e.Line)
	}
	msg += ": " + e.Message
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// NewScriptError creates a new ScriptError.
func NewScriptError(contract string, line uint, message string, err error) *ScriptError {
	return &ScriptError{
		Contract: contract,
		Line:     line,
		Message:  message,
		Err:      err,
	}
}
