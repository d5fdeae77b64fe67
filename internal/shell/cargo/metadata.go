// Package cargo runs the external compiler and reads workspace metadata.
package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/artpar/trellis/internal/core/build"
	"github.com/artpar/trellis/internal/core/graph"
)

// ErrMetadata is returned when workspace metadata cannot be read.
var ErrMetadata = errors.New("cannot read workspace metadata")

// DefaultNamespaces are the package metadata keys that carry contract flags.
var DefaultNamespaces = []string{"trellis", "loam"}

// =============================================================================
// Metadata JSON
// =============================================================================

type metadataDoc struct {
	Packages         []packageDoc `json:"packages"`
	WorkspaceMembers []string     `json:"workspace_members"`
	Resolve          *resolveDoc  `json:"resolve"`
	TargetDirectory  string       `json:"target_directory"`
	WorkspaceRoot    string       `json:"workspace_root"`
}

type packageDoc struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Version      string                     `json:"version"`
	ManifestPath string                     `json:"manifest_path"`
	Features     map[string][]string        `json:"features"`
	Targets      []targetDoc                `json:"targets"`
	Dependencies []dependencyDoc            `json:"dependencies"`
	Metadata     map[string]json.RawMessage `json:"metadata"`
}

type targetDoc struct {
	Name       string   `json:"name"`
	Kind       []string `json:"kind"`
	CrateTypes []string `json:"crate_types"`
}

type dependencyDoc struct {
	Name string  `json:"name"`
	Kind *string `json:"kind"`
}

type resolveDoc struct {
	Root  *string   `json:"root"`
	Nodes []nodeDoc `json:"nodes"`
}

type nodeDoc struct {
	ID   string       `json:"id"`
	Deps []nodeDepDoc `json:"deps"`
}

type nodeDepDoc struct {
	Pkg      string       `json:"pkg"`
	DepKinds []depKindDoc `json:"dep_kinds"`
}

type depKindDoc struct {
	Kind *string `json:"kind"`
}

type flagsDoc struct {
	Contract    bool `json:"contract"`
	Subcontract bool `json:"subcontract"`
}

// =============================================================================
// Parsing
// =============================================================================

// ParseMetadata converts `cargo metadata --format-version 1` output into a
// metadata snapshot. Contract flags are read from the first namespace in
// namespaces that a package's metadata table carries.
func ParseMetadata(data []byte, namespaces []string) (graph.Metadata, error) {
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return graph.Metadata{}, build.NewBuildError("Metadata", "", "decoding metadata: "+err.Error(), ErrMetadata)
	}
	if len(namespaces) == 0 {
		namespaces = DefaultNamespaces
	}

	deps := normalDependencies(doc)

	meta := graph.Metadata{
		TargetDir:     doc.TargetDirectory,
		WorkspaceRoot: doc.WorkspaceRoot,
	}
	if doc.Resolve != nil && doc.Resolve.Root != nil {
		meta.Root = graph.PackageID(*doc.Resolve.Root)
	}

	for _, p := range doc.Packages {
		version, err := semver.NewVersion(p.Version)
		if err != nil {
			return graph.Metadata{}, build.NewBuildError("Metadata", p.Name,
				fmt.Sprintf("invalid version %q: %v", p.Version, err), ErrMetadata)
		}

		flags, err := contractFlags(p.Metadata, namespaces)
		if err != nil {
			return graph.Metadata{}, build.NewBuildError("Metadata", p.Name, err.Error(), ErrMetadata)
		}

		pkg := graph.Package{
			ID:           graph.PackageID(p.ID),
			Name:         p.Name,
			Version:      version.String(),
			ManifestPath: p.ManifestPath,
			Dependencies: deps[p.ID],
			Contract:     flags.Contract,
			Subcontract:  flags.Subcontract,
			Deployable:   hasCdylib(p.Targets),
			Member:       slices.Contains(doc.WorkspaceMembers, p.ID),
		}
		for f := range p.Features {
			pkg.Features = append(pkg.Features, f)
		}
		slices.Sort(pkg.Features)

		meta.Packages = append(meta.Packages, pkg)
	}

	return meta, nil
}

// normalDependencies maps each package id to its normal (non-dev, non-build)
// dependency ids using the resolve graph.
func normalDependencies(doc metadataDoc) map[string][]graph.PackageID {
	result := make(map[string][]graph.PackageID)
	if doc.Resolve == nil {
		return result
	}
	for _, node := range doc.Resolve.Nodes {
		for _, dep := range node.Deps {
			if isNormal(dep.DepKinds) {
				result[node.ID] = append(result[node.ID], graph.PackageID(dep.Pkg))
			}
		}
	}
	return result
}

func isNormal(kinds []depKindDoc) bool {
	// Older metadata omits dep_kinds entirely.
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k.Kind == nil {
			return true
		}
	}
	return false
}

func contractFlags(meta map[string]json.RawMessage, namespaces []string) (flagsDoc, error) {
	var flags flagsDoc
	for _, ns := range namespaces {
		raw, ok := meta[ns]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &flags); err != nil {
			return flagsDoc{}, fmt.Errorf("invalid [package.metadata.%s]: %w", ns, err)
		}
		return flags, nil
	}
	return flags, nil
}

func hasCdylib(targets []targetDoc) bool {
	for _, t := range targets {
		if slices.Contains(t.CrateTypes, "cdylib") {
			return true
		}
	}
	return false
}

// =============================================================================
// Loader
// =============================================================================

// MetadataLoader runs the metadata command of the compiler toolchain.
type MetadataLoader struct {
	program    string
	namespaces []string
	logger     *slog.Logger
}

// NewMetadataLoader creates a loader for the given toolchain binary.
func NewMetadataLoader(program string, namespaces []string, logger *slog.Logger) *MetadataLoader {
	if logger == nil {
		logger = slog.Default()
	}
	if program == "" {
		program = "cargo"
	}
	return &MetadataLoader{
		program:    program,
		namespaces: namespaces,
		logger:     logger.With("component", "metadata"),
	}
}

// Load reads the metadata of the workspace containing manifestPath.
func (l *MetadataLoader) Load(ctx context.Context, manifestPath string) (graph.Metadata, error) {
	args := []string{"metadata", "--format-version", "1"}
	if manifestPath != "" {
		args = append(args, "--manifest-path", manifestPath)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.program, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.logger.Debug("loading metadata", "manifest_path", manifestPath)
	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) == 0 {
			msg = []byte(err.Error())
		}
		return graph.Metadata{}, build.NewBuildError("Metadata", "", string(msg), ErrMetadata)
	}

	meta, err := ParseMetadata(stdout.Bytes(), l.namespaces)
	if err != nil {
		return graph.Metadata{}, err
	}
	l.logger.Debug("metadata loaded", "packages", len(meta.Packages), "target_dir", meta.TargetDir)
	return meta, nil
}
