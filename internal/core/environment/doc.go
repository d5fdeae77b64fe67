// Package environment models the named deployment environments and the
// rules each one imposes on a pipeline run.
//
// This package is part of the Functional Core. Validation and policy lookup
// are pure functions over values decoded by internal/shell/envfile.
//
// # Environments
//
//   - development: silent redeploys, init scripts, bindings allow http
//   - testing: silent redeploys, init scripts
//   - staging, production: contracts are referenced by explicit id; changed
//     artifacts are rejected instead of redeployed
package environment
