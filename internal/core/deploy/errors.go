package deploy

import (
	"errors"
	"fmt"

	"github.com/artpar/trellis/internal/core/environment"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrBadContractName is returned when a configured contract has no artifact.
	ErrBadContractName = errors.New("no contract with this name")

	// ErrInvalidContractID is returned when an explicit id is malformed.
	ErrInvalidContractID = errors.New("invalid contract id")

	// ErrRejected is returned when the environment forbids the required deployment.
	ErrRejected = errors.New("deployment rejected by environment policy")
)

// ArtifactError reports a contract whose artifact or id cannot be used.
type ArtifactError struct {
	Op       string
	Contract string
	Message  string
	Err      error
}

func (e *ArtifactError) Error() string {
	return e.Message
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// NewBadContractNameError reports a configured contract without an artifact.
func NewBadContractNameError(name string) *ArtifactError {
	return &ArtifactError{
		Op:       "CheckArtifact",
		Contract: name,
		Message:  fmt.Sprintf("no contract named %q", name),
		Err:      ErrBadContractName,
	}
}

// NewInvalidContractIDError reports a malformed explicit contract id.
func NewInvalidContractIDError(name, id string) *ArtifactError {
	return &ArtifactError{
		Op:       "CheckContractID",
		Contract: name,
		Message:  fmt.Sprintf("invalid contract ID for %q: %q", name, id),
		Err:      ErrInvalidContractID,
	}
}

// PolicyError reports a deployment the environment does not allow.
type PolicyError struct {
	Contract    string
	Environment environment.Name
	Reason      string
	Err         error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("contract %q rejected: %s", e.Contract, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// NewPolicyError creates a new PolicyError.
func NewPolicyError(contract string, env environment.Name, reason string) *PolicyError {
	return &PolicyError{
		Contract:    contract,
		Environment: env,
		Reason:      reason,
		Err:         ErrRejected,
	}
}
