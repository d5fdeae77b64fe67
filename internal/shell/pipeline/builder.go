package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/artpar/trellis/internal/core/build"
	"github.com/artpar/trellis/internal/core/graph"
	"github.com/artpar/trellis/internal/shell/console"
)

// MetadataSource loads workspace metadata.
type MetadataSource interface {
	Load(ctx context.Context, manifestPath string) (graph.Metadata, error)
}

// Compiler runs a planned compiler command.
type Compiler interface {
	Run(ctx context.Context, cmd build.Command, dir string) error
}

// BuildOptions are the build stage choices of one run.
type BuildOptions struct {
	ManifestPath string
	Package      string
	Build        build.Options
	OutDir       string

	// List prints package names in build order and stops.
	List bool

	// DryRun prints compiler commands without running them.
	DryRun bool
}

// BuildResult is what the build stage produced.
type BuildResult struct {
	Metadata  graph.Metadata
	Packages  []graph.Package // in build order
	OutputDir string
}

// Names returns the built package names in build order.
func (r *BuildResult) Names() []string {
	return graph.Names(r.Packages)
}

// Builder compiles the selected packages in dependency order.
type Builder struct {
	metadata   MetadataSource
	compiler   Compiler
	program    string
	workingDir string
	stdout     io.Writer
	console    *console.Console
	logger     *slog.Logger
}

// NewBuilder creates a builder. Listing and dry-run output goes to stdout.
func NewBuilder(metadata MetadataSource, compiler Compiler, program, workingDir string, stdout io.Writer, con *console.Console, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if con == nil {
		con = console.Discard()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if program == "" {
		program = "cargo"
	}
	return &Builder{
		metadata:   metadata,
		compiler:   compiler,
		program:    program,
		workingDir: workingDir,
		stdout:     stdout,
		console:    con,
		logger:     logger.With("component", "builder"),
	}
}

// Build resolves, orders and compiles packages, then links each artifact
// into the output directory.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	meta, err := b.metadata.Load(ctx, opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	selected, err := graph.Select(meta, opts.Package)
	if err != nil {
		return nil, err
	}
	ordered, err := graph.Workspace(selected, meta.Packages)
	if err != nil {
		return nil, err
	}

	result := &BuildResult{
		Metadata:  meta,
		Packages:  ordered,
		OutputDir: build.OutputDir(meta.TargetDir, opts.OutDir),
	}

	if opts.List {
		for _, p := range ordered {
			fmt.Fprintln(b.stdout, p.Name)
		}
		return result, nil
	}

	profile := opts.Build.ActiveProfile()
	for _, pkg := range ordered {
		cmd := build.Plan(b.program, pkg, b.workingDir, opts.Build)

		if opts.DryRun {
			fmt.Fprintln(b.stdout, cmd.String())
			continue
		}

		b.console.Task("building %s", pkg.Name)
		b.logger.Debug("compiling package", "package", pkg.Name, "profile", profile)
		if err := b.compiler.Run(ctx, cmd, b.workingDir); err != nil {
			return nil, err
		}

		src := build.ArtifactPath(meta.TargetDir, profile, pkg.Name)
		dst := build.OutputPath(meta.TargetDir, opts.OutDir, pkg.Name)
		if err := Link(src, dst); err != nil {
			return nil, err
		}
		b.logger.Debug("artifact linked", "package", pkg.Name, "path", dst)
	}

	return result, nil
}
