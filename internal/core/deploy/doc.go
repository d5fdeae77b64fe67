// Package deploy decides what happens to each contract during a pipeline run.
//
// This package contains the functional core of the deployment cache: the
// contract state machine, the planner that turns an observation of local and
// remote hashes into a transition path, and contract ordering. All functions
// are pure (no I/O, no side effects).
//
// # States
//
//	NotDeployed ──► Deployed | Rejected
//	NeedsUpdate ──► Deployed | Rejected
//	UpToDate        (terminal, nothing to do)
//
// # Usage
//
// The imperative shell (internal/shell/pipeline) hashes artifacts, reads the
// alias store and fetches remote code, then asks this package what to do:
//
//	state := deploy.Assess(obs)
//	path := deploy.DeterminePath(state, policy)
//	if !path.Valid {
//	    return deploy.NewPolicyError(name, policy.Environment, path.ErrorReason)
//	}
package deploy
