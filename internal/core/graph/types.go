package graph

import (
	"path/filepath"
	"slices"
)

// PackageID uniquely identifies a package within one metadata snapshot.
type PackageID string

// Package is a single package as reported by the metadata service.
type Package struct {
	ID           PackageID
	Name         string
	Version      string
	ManifestPath string

	// Features lists the feature flags the package declares.
	Features []string

	// Dependencies are the ids of the package's direct normal dependencies.
	Dependencies []PackageID

	// Contract marks the package as a contract dependency of its consumers.
	Contract bool

	// Subcontract marks the package as a subcontract dependency.
	Subcontract bool

	// Deployable is true when the package builds a cdylib target.
	Deployable bool

	// Member is true for workspace members.
	Member bool
}

// Dir returns the directory containing the package manifest.
func (p Package) Dir() string {
	return filepath.Dir(p.ManifestPath)
}

// HasFeature reports whether the package declares the named feature.
func (p Package) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// Metadata is an immutable snapshot of a workspace's packages.
type Metadata struct {
	Packages      []Package
	Root          PackageID // empty for virtual workspaces
	TargetDir     string
	WorkspaceRoot string
}

// Index returns the packages keyed by id.
func (m Metadata) Index() map[PackageID]Package {
	return index(m.Packages)
}

// Names returns the names of the given packages in order.
func Names(packages []Package) []string {
	names := make([]string, len(packages))
	for i, p := range packages {
		names[i] = p.Name
	}
	return names
}

func index(packages []Package) map[PackageID]Package {
	idx := make(map[PackageID]Package, len(packages))
	for _, p := range packages {
		idx[p.ID] = p
	}
	return idx
}
