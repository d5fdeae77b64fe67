package graph

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrCycle is returned when contract relationships form a cycle.
	ErrCycle = errors.New("dependency cycle")

	// ErrRootNotFound is returned when the root package is missing from the metadata.
	ErrRootNotFound = errors.New("root package not found")

	// ErrPackageNotFound is returned when a requested package does not exist.
	ErrPackageNotFound = errors.New("package not found")
)

// GraphError wraps graph failures with the packages involved.
type GraphError struct {
	Op      string   // Operation that failed (e.g., "TopologicalSort")
	Package string   // Package the operation was about, if any
	Cycle   []string // Packages left unsorted when a cycle is found
	Message string
	Err     error
}

func (e *GraphError) Error() string {
	switch {
	case len(e.Cycle) > 0:
		return fmt.Sprintf("%s: %s between %s", e.Op, e.Message, strings.Join(e.Cycle, ", "))
	case e.Package != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Package, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// NewGraphError creates a new GraphError.
func NewGraphError(op, pkg, message string, err error) *GraphError {
	return &GraphError{
		Op:      op,
		Package: pkg,
		Message: message,
		Err:     err,
	}
}
