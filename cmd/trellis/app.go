package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/shell/bindings"
	"github.com/artpar/trellis/internal/shell/cargo"
	"github.com/artpar/trellis/internal/shell/console"
	"github.com/artpar/trellis/internal/shell/keys"
	"github.com/artpar/trellis/internal/shell/pipeline"
	"github.com/artpar/trellis/internal/shell/rpc"
	"github.com/artpar/trellis/internal/shell/store"
)

// app carries the process streams and the components shared by commands.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	noColor    bool

	cfg     *Config
	logger  *slog.Logger
	console *console.Console
}

// setup loads configuration and prepares logging and status output.
func (a *app) setup() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = SetupLogger(cfg, a.stderr)
	a.console = console.New(a.stderr, !a.noColor)
	a.logger.Debug("configuration loaded", "version", Version, "config", a.configPath, "store", cfg.Store.Path)
	return nil
}

// storePath locates the state database of the workspace owning
// manifestPath. Only a relative path needs the workspace metadata.
func (a *app) storePath(ctx context.Context, manifestPath string) (string, error) {
	if !a.cfg.Store.NeedsWorkspace() {
		return a.cfg.Store.Path, nil
	}
	meta, err := a.metadata().Load(ctx, manifestPath)
	if err != nil {
		return "", err
	}
	return a.cfg.Store.Resolve(meta.WorkspaceRoot), nil
}

// openStore opens the state database at path, creating its directory as
// needed.
func (a *app) openStore(path string) (store.Store, error) {
	if path != memoryStore {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	a.logger.Debug("opening store", "path", path)
	return store.NewSQLiteStore(path)
}

// openWorkspaceStore opens the state database of the workspace owning
// manifestPath.
func (a *app) openWorkspaceStore(ctx context.Context, manifestPath string) (store.Store, string, error) {
	path, err := a.storePath(ctx, manifestPath)
	if err != nil {
		return nil, "", err
	}
	s, err := a.openStore(path)
	if err != nil {
		return nil, "", err
	}
	return s, path, nil
}

func (a *app) metadata() *cargo.MetadataLoader {
	return cargo.NewMetadataLoader(a.cfg.Compiler.Program, a.cfg.Metadata.Namespaces, a.logger)
}

func (a *app) builder(metadata pipeline.MetadataSource) (*pipeline.Builder, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	compiler := cargo.NewCompiler(a.stderr, a.stderr, a.logger)
	return pipeline.NewBuilder(metadata, compiler, a.cfg.Compiler.Program, wd, a.stdout, a.console, a.logger), nil
}

func (a *app) deployer(s store.Store) *pipeline.Deployer {
	keyring := keys.NewKeyring(s, a.cfg.Keys.Secret, a.console, a.logger)
	dial := func(n environment.Network) pipeline.Network {
		return rpc.NewClient(rpc.Config{
			URL:        n.RPCURL,
			Passphrase: n.Passphrase,
			Timeout:    a.cfg.RPC.Timeout,
		}, a.logger)
	}
	binders := func(root string) pipeline.Binder {
		return bindings.NewGenerator(root, a.cfg.Bindings.Command, a.stderr, a.console, a.logger)
	}
	return pipeline.NewDeployer(pipeline.DeployerConfig{Networks: a.cfg.NetworkRegistry()},
		s, keyring, dial, binders, a.console, a.logger)
}
