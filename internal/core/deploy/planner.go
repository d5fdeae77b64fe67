package deploy

import (
	"fmt"

	"github.com/artpar/trellis/internal/core/environment"
)

// =============================================================================
// Observation
// =============================================================================

// Observation is what the shell learned about a contract before deciding.
type Observation struct {
	// LocalHash is the hex sha256 of the local artifact.
	LocalHash string

	// HasAlias is true when an alias exists for (name, passphrase).
	HasAlias bool

	// RemoteFound is true when the aliased contract's code was fetched.
	RemoteFound bool

	// RemoteHash is the hex sha256 of the fetched code.
	RemoteHash string
}

// Assess returns the starting state of a contract. A missing alias and a
// remote not-found are the same: the contract is not deployed.
func Assess(obs Observation) State {
	if !obs.HasAlias || !obs.RemoteFound {
		return StateNotDeployed
	}
	if obs.LocalHash == obs.RemoteHash {
		return StateUpToDate
	}
	return StateNeedsUpdate
}

// =============================================================================
// Path Planning
// =============================================================================

// Path is the result of planning what to do with a contract.
type Path struct {
	// Valid indicates whether the run may continue with this contract.
	Valid bool

	// Transitions is the sequence of states to move through. Empty for
	// UpToDate contracts and invalid paths.
	Transitions []State

	// ErrorReason explains why the path is invalid.
	ErrorReason string
}

// Skip reports whether the contract needs no work at all.
func (p Path) Skip() bool {
	return p.Valid && len(p.Transitions) == 0
}

// DeterminePath decides how a contract in the given state proceeds under an
// environment policy.
//
// Valid paths:
//   - up_to_date: nothing to do
//   - not_deployed → deployed, when the policy deploys new contracts
//   - needs_update → deployed, when the policy redeploys on mismatch
//
// Everything else is rejected with a reason naming the environment.
func DeterminePath(state State, policy environment.Policy) Path {
	switch state {
	case StateUpToDate:
		return Path{Valid: true}

	case StateNotDeployed:
		if policy.DeployNew {
			return Path{Valid: true, Transitions: []State{StateDeployed}}
		}
		return Path{
			Valid:       false,
			Transitions: []State{StateRejected},
			ErrorReason: fmt.Sprintf("contract is not deployed and must be identified by its ID in %s", policy.Environment),
		}

	case StateNeedsUpdate:
		if policy.RedeployOnMismatch {
			return Path{Valid: true, Transitions: []State{StateDeployed}}
		}
		return Path{
			Valid:       false,
			Transitions: []State{StateRejected},
			ErrorReason: fmt.Sprintf("contract has changed; redeploying is not allowed in %s, contract must be identified by its ID", policy.Environment),
		}

	default:
		return Path{
			Valid:       false,
			ErrorReason: fmt.Sprintf("cannot plan contract in state %s", state),
		}
	}
}
