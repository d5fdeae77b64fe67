package deploy

import (
	"errors"
	"fmt"
)

// =============================================================================
// Contract State
// =============================================================================

// State is the deployment state of one contract within a run.
type State string

const (
	StateNotDeployed State = "not_deployed"
	StateNeedsUpdate State = "needs_update"
	StateUpToDate    State = "up_to_date"
	StateDeployed    State = "deployed"
	StateRejected    State = "rejected"
)

// ErrInvalidTransition is returned for transitions the state machine forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines the allowed state transitions.
var validTransitions = map[State][]State{
	StateNotDeployed: {StateDeployed, StateRejected},
	StateNeedsUpdate: {StateDeployed, StateRejected},
	StateUpToDate:    {}, // Terminal state
	StateDeployed:    {}, // Terminal state
	StateRejected:    {}, // Terminal state
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// =============================================================================
// Contract
// =============================================================================

// Contract tracks one contract through a run.
type Contract struct {
	Name       string
	State      State
	LocalHash  string
	ContractID string
}

// Transition moves the contract to a new state.
func (c *Contract) Transition(to State) error {
	if err := ValidateTransition(c.State, to); err != nil {
		return fmt.Errorf("%s: %s -> %s: %w", c.Name, c.State, to, err)
	}
	c.State = to
	return nil
}
