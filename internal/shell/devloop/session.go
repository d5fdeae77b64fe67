package devloop

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/trellis/internal/core/build"
	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/core/graph"
	"github.com/artpar/trellis/internal/core/watch"
	"github.com/artpar/trellis/internal/shell/console"
	"github.com/artpar/trellis/internal/shell/pipeline"
)

// Runner runs one pipeline pass.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.BuildResult, error)
}

// Config holds dev session settings.
type Config struct {
	Debounce time.Duration
	Ignore   []string // patterns added to watch.DefaultIgnore
	Exclude  []string // directories never watched, such as the state store
}

// Session watches a workspace and rebuilds it on change.
type Session struct {
	runner   Runner
	metadata pipeline.MetadataSource
	config   Config
	console  *console.Console
	logger   *slog.Logger
}

// NewSession creates a dev session.
func NewSession(runner Runner, metadata pipeline.MetadataSource, cfg Config, con *console.Console, logger *slog.Logger) *Session {
	if con == nil {
		con = console.Discard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		runner:   runner,
		metadata: metadata,
		config:   cfg,
		console:  con,
		logger:   logger,
	}
}

// DevOptions adapts build options for a dev session: development
// environment, clients on, and the debug profile unless one was chosen.
func DevOptions(opts pipeline.Options) pipeline.Options {
	opts.Environment = environment.Development
	opts.BuildClients = true
	opts.List = false
	opts.DryRun = false
	if opts.Build.Profile == "" {
		opts.Build.Profile = build.DebugProfile
	}
	return opts
}

// Run builds once and then rebuilds on every change until ctx is done.
func (s *Session) Run(ctx context.Context, opts pipeline.Options) error {
	opts = DevOptions(opts)

	meta, err := s.metadata.Load(ctx, opts.ManifestPath)
	if err != nil {
		return err
	}
	packages, err := graph.Select(meta, opts.Package)
	if err != nil {
		return err
	}
	dirs := make([]string, 0, len(packages))
	for _, p := range packages {
		dirs = append(dirs, p.Dir())
	}

	matcher := watch.NewMatcher(s.config.Ignore...)
	for _, dir := range s.config.Exclude {
		matcher.Exclude(dir)
	}

	watcher, err := NewWatcher(meta.WorkspaceRoot, dirs, matcher, s.console, s.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	rebuild := func(ctx context.Context) error {
		_, err := s.runner.Run(ctx, opts)
		return err
	}
	loop := NewLoop(watcher.Events(), rebuild, s.config.Debounce, s.console, s.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx) })
	return g.Wait()
}
