package graph

import "slices"

// =============================================================================
// Package Resolution
// =============================================================================

// Resolve returns every package reachable from root through dependency edges.
// Dependencies come first in breadth-first discovery order and the root
// package is last. Dependency ids absent from the snapshot are skipped.
func Resolve(packages []Package, root PackageID) ([]Package, error) {
	idx := index(packages)
	rootPkg, ok := idx[root]
	if !ok {
		return nil, NewGraphError("Resolve", string(root), "no metadata for root package", ErrRootNotFound)
	}

	visited := map[PackageID]bool{root: true}
	queue := slices.Clone(rootPkg.Dependencies)

	var result []Package
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		p, ok := idx[id]
		if !ok {
			continue
		}
		result = append(result, p)
		queue = append(queue, p.Dependencies...)
	}

	return append(result, rootPkg), nil
}

// ContractDependencies returns the transitive dependencies of a package that
// are flagged as contracts. The package itself is never included.
func ContractDependencies(packages []Package, of PackageID) ([]Package, error) {
	return dependenciesWhere(packages, of, func(p Package) bool { return p.Contract })
}

// SubcontractDependencies returns the transitive dependencies of a package
// that are flagged as subcontracts.
func SubcontractDependencies(packages []Package, of PackageID) ([]Package, error) {
	return dependenciesWhere(packages, of, func(p Package) bool { return p.Subcontract })
}

func dependenciesWhere(packages []Package, of PackageID, keep func(Package) bool) ([]Package, error) {
	all, err := Resolve(packages, of)
	if err != nil {
		return nil, err
	}

	var result []Package
	for _, p := range all {
		if p.ID != of && keep(p) {
			result = append(result, p)
		}
	}
	return result, nil
}

// Select picks the packages a build starts from. With a package name it
// returns that workspace member followed by its contract dependencies;
// without one it returns every workspace member that builds a deployable
// artifact.
func Select(meta Metadata, name string) ([]Package, error) {
	if name == "" {
		var result []Package
		for _, p := range meta.Packages {
			if p.Member && p.Deployable {
				result = append(result, p)
			}
		}
		return result, nil
	}

	for _, p := range meta.Packages {
		if p.Member && p.Name == name {
			deps, err := ContractDependencies(meta.Packages, p.ID)
			if err != nil {
				return nil, err
			}
			return append(deps, p), nil
		}
	}

	return nil, NewGraphError("Select", name, "package "+name+" not found", ErrPackageNotFound)
}
