// Package pipeline runs the build and deploy stages of a workspace.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrIO is returned when an artifact cannot be read, linked or copied.
var ErrIO = errors.New("artifact i/o failed")

// IOError describes a filesystem failure on an artifact.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// NewIOError creates a new IOError.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}
