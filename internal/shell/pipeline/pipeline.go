package pipeline

import (
	"context"
	"log/slog"

	"github.com/artpar/trellis/internal/core/environment"
)

// Options are the choices of one build invocation.
type Options struct {
	BuildOptions

	// BuildClients enables the deploy stage after a successful build.
	BuildClients bool

	Environment environment.Name
}

// Pipeline runs the build stage followed by the deploy stage.
type Pipeline struct {
	builder  *Builder
	deployer *Deployer
	logger   *slog.Logger
}

// New creates a pipeline. A nil deployer disables the deploy stage.
func New(builder *Builder, deployer *Deployer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		builder:  builder,
		deployer: deployer,
		logger:   logger.With("component", "pipeline"),
	}
}

// Run builds the workspace and, when requested, deploys the built
// contracts. Listing and dry runs never deploy.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*BuildResult, error) {
	result, err := p.builder.Build(ctx, opts.BuildOptions)
	if err != nil {
		return nil, err
	}

	if !opts.BuildClients || opts.List || opts.DryRun || p.deployer == nil {
		return result, nil
	}

	names := result.Names()
	if len(names) == 0 {
		p.logger.Debug("nothing built, skipping deploy")
		return result, nil
	}

	env := opts.Environment
	if env == "" {
		env = environment.Default
	}
	p.logger.Debug("deploying", "environment", string(env), "contracts", names)

	err = p.deployer.Deploy(ctx, DeployRequest{
		Root:        result.Metadata.WorkspaceRoot,
		OutputDir:   result.OutputDir,
		Environment: env,
		Built:       names,
	})
	if err != nil {
		return result, err
	}
	return result, nil
}
