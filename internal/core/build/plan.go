// Package build assembles compiler invocations and artifact paths.
// This is part of the Functional Core - all functions are pure with no I/O.
package build

import (
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/artpar/trellis/internal/core/graph"
)

const (
	// DefaultProfile is used when no profile is requested.
	DefaultProfile = "release"

	// DebugProfile is the compiler's unoptimised profile.
	DebugProfile = "debug"

	// Target is the compilation target for deployable artifacts.
	Target = "wasm32-unknown-unknown"

	// OutputDirName is the directory under the target dir that collects artifacts.
	OutputDirName = "trellis"

	artifactExt = ".wasm"
)

// sizeFlags are appended when the caller did not pick a profile. They match a
// size-optimised release profile without requiring one in the manifest.
var sizeFlags = []string{
	"--",
	"-C", "opt-level=z",
	"-C", "overflow-checks=yes",
	"-C", "debuginfo=0",
	"-C", "strip=symbols",
	"-C", "debug-assertions=yes",
	"-C", "panic=abort",
	"-C", "codegen-units=1",
	"-C", "lto=yes",
}

// =============================================================================
// Options
// =============================================================================

// Options are the user's build choices shared by every package in a run.
type Options struct {
	// Profile is the requested profile. Empty selects DefaultProfile plus
	// the size flags.
	Profile string

	// Features are requested feature flags; only those a package declares
	// are passed to the compiler.
	Features []string

	AllFeatures       bool
	NoDefaultFeatures bool
}

// ActiveProfile returns the profile the build runs with.
func (o Options) ActiveProfile() string {
	if o.Profile == "" {
		return DefaultProfile
	}
	return o.Profile
}

// ParseFeatures splits a space or comma separated feature list.
func ParseFeatures(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// =============================================================================
// Command Planning
// =============================================================================

// Command is a fully assembled external process invocation.
type Command struct {
	Program string
	Args    []string
	Env     []string // KEY=VALUE pairs added to the inherited environment
	Package string
}

// String renders the command the way it is echoed to the user.
func (c Command) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// Plan assembles the compiler invocation for one package. The manifest path
// is made relative to workingDir when possible.
func Plan(program string, pkg graph.Package, workingDir string, opts Options) Command {
	manifest := pkg.ManifestPath
	if workingDir != "" {
		if rel, err := filepath.Rel(workingDir, pkg.ManifestPath); err == nil {
			manifest = rel
		}
	}

	args := []string{
		"rustc",
		"--manifest-path=" + manifest,
		"--crate-type=cdylib",
		"--target=" + Target,
	}

	switch profile := opts.ActiveProfile(); profile {
	case DefaultProfile:
		args = append(args, "--release")
	case DebugProfile:
	default:
		args = append(args, "--profile="+profile)
	}

	if opts.AllFeatures {
		args = append(args, "--all-features")
	}
	if opts.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if active := ActivatedFeatures(pkg, opts.Features); len(active) > 0 {
		args = append(args, "--features="+strings.Join(active, ","))
	}

	cmd := Command{Program: program, Package: pkg.Name}
	if opts.Profile == "" {
		args = append(args, sizeFlags...)
		cmd.Env = []string{"RUSTFLAGS=-C embed-bitcode=yes"}
	}
	cmd.Args = args
	return cmd
}

// ActivatedFeatures returns the sorted intersection of requested features and
// the features the package declares. Unknown requests are dropped.
func ActivatedFeatures(pkg graph.Package, requested []string) []string {
	var active []string
	for _, f := range requested {
		if pkg.HasFeature(f) && !slices.Contains(active, f) {
			active = append(active, f)
		}
	}
	slices.Sort(active)
	return active
}

// =============================================================================
// Artifact Paths
// =============================================================================

// NormalizeName replaces every character that is not a letter or digit with
// an underscore, matching how the compiler names library artifacts.
func NormalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, name)
}

// ArtifactName returns the artifact file name for a package.
func ArtifactName(pkgName string) string {
	return NormalizeName(pkgName) + artifactExt
}

// ArtifactPath is where the compiler writes a package's artifact.
func ArtifactPath(targetDir, profile, pkgName string) string {
	return filepath.Join(targetDir, Target, profile, ArtifactName(pkgName))
}

// OutputDir is the canonical directory artifacts are linked into. An explicit
// outDir wins over the default under the target directory.
func OutputDir(targetDir, outDir string) string {
	if outDir != "" {
		return outDir
	}
	return filepath.Join(targetDir, OutputDirName)
}

// OutputPath is the canonical location of a package's artifact.
func OutputPath(targetDir, outDir, pkgName string) string {
	return filepath.Join(OutputDir(targetDir, outDir), ArtifactName(pkgName))
}
