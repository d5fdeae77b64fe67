// Package graph resolves the set of packages a build touches and orders them
// by their declared contract relationships.
//
// This package is part of the Functional Core. Every function operates on an
// immutable metadata snapshot and performs no I/O; the imperative shell
// (internal/shell/cargo) produces the snapshot.
//
// # Functions
//
//   - Resolve: transitive package set reachable from a root package
//   - ContractDependencies: transitive dependencies flagged as contracts
//   - Select: packages named on the command line, or every deployable one
//   - Workspace: selected packages in dependency order
//   - TopologicalSort: Kahn's algorithm over package ids, failing on cycles
//
// # Usage
//
//	selected, err := graph.Select(meta, "")
//	ordered, err := graph.Workspace(selected, meta.Packages)
package graph
