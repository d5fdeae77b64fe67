package build

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrExit is returned when the compiler exits with a nonzero status.
	ErrExit = errors.New("compiler exited with nonzero status")

	// ErrCompilerStart is returned when the compiler cannot be started.
	ErrCompilerStart = errors.New("compiler could not be started")
)

// BuildError describes a failed compiler invocation.
type BuildError struct {
	Op      string
	Package string
	Status  int // Exit status, -1 when the process never ran
	Message string
	Err     error
}

func (e *BuildError) Error() string {
	if errors.Is(e.Err, ErrExit) {
		return fmt.Sprintf("building %s: exit status %d", e.Package, e.Status)
	}
	if e.Package != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Package, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// NewExitError creates a BuildError for a nonzero compiler exit.
func NewExitError(pkg string, status int) *BuildError {
	return &BuildError{
		Op:      "Compile",
		Package: pkg,
		Status:  status,
		Message: fmt.Sprintf("exit status %d", status),
		Err:     ErrExit,
	}
}

// NewBuildError creates a new BuildError.
func NewBuildError(op, pkg, message string, err error) *BuildError {
	return &BuildError{
		Op:      op,
		Package: pkg,
		Status:  -1,
		Message: message,
		Err:     err,
	}
}
