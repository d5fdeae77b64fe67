package devloop

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/trellis/internal/core/build"
	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/core/graph"
	"github.com/artpar/trellis/internal/shell/pipeline"
)

type staticMetadata struct {
	meta graph.Metadata
}

func (m *staticMetadata) Load(ctx context.Context, manifestPath string) (graph.Metadata, error) {
	return m.meta, nil
}

type recordingRunner struct {
	mu   sync.Mutex
	runs []pipeline.Options
}

func (r *recordingRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.BuildResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, opts)
	return &pipeline.BuildResult{}, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestDevOptions(t *testing.T) {
	opts := DevOptions(pipeline.Options{
		BuildOptions: pipeline.BuildOptions{List: true},
		Environment:  environment.Production,
	})
	assert.Equal(t, environment.Development, opts.Environment)
	assert.True(t, opts.BuildClients)
	assert.False(t, opts.List)
	assert.Equal(t, build.DebugProfile, opts.Build.Profile)

	opts = DevOptions(pipeline.Options{BuildOptions: pipeline.BuildOptions{Build: build.Options{Profile: "release"}}})
	assert.Equal(t, "release", opts.Build.Profile)
}

func TestSession_BuildsThenRebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	pkg := filepath.Join(root, "contracts", "counter")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	meta := graph.Metadata{
		WorkspaceRoot: root,
		Packages: []graph.Package{{
			ID: "counter 0.1.0", Name: "counter",
			ManifestPath: filepath.Join(pkg, "Cargo.toml"),
			Deployable:   true, Member: true,
		}},
	}

	runner := &recordingRunner{}
	session := NewSession(runner, &staticMetadata{meta: meta}, Config{Debounce: 20 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx, pipeline.Options{}) }()

	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(pkg, "lib.rs"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return runner.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, environment.Development, runner.runs[0].Environment)
	assert.Equal(t, build.DebugProfile, runner.runs[0].Build.Profile)
}
