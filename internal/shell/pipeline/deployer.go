package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/trellis/internal/core/build"
	"github.com/artpar/trellis/internal/core/deploy"
	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/core/strkey"
	"github.com/artpar/trellis/internal/shell/bindings"
	"github.com/artpar/trellis/internal/shell/console"
	"github.com/artpar/trellis/internal/shell/envfile"
	"github.com/artpar/trellis/internal/shell/keys"
	"github.com/artpar/trellis/internal/shell/rpc"
	"github.com/artpar/trellis/internal/shell/script"
	"github.com/artpar/trellis/internal/shell/store"
)

// DefaultLockTTL bounds how long a crashed run can hold the workspace lock.
const DefaultLockTTL = 10 * time.Minute

// Network is the set of RPC operations the deploy stage needs.
type Network interface {
	InstallContract(ctx context.Context, wasm []byte, source rpc.Signer) (string, error)
	DeployContract(ctx context.Context, wasmHash string, source rpc.Signer) (string, error)
	GetContractWasm(ctx context.Context, contractID string) ([]byte, error)
	InvokeContract(ctx context.Context, contractID, function string, args []string, source rpc.Signer) (json.RawMessage, error)
	FundAccount(ctx context.Context, address string) error
}

// Dialer returns the RPC client of a resolved network.
type Dialer func(network environment.Network) Network

// Binder generates client bindings for a deployed contract.
type Binder interface {
	Generate(ctx context.Context, req bindings.Request) error
}

// BinderFactory returns a binder writing into the workspace at root.
type BinderFactory func(root string) Binder

// DeployRequest describes one deploy stage.
type DeployRequest struct {
	Root        string // workspace root holding environments.toml
	OutputDir   string // directory of linked artifacts
	Environment environment.Name
	Built       []string // package names in build order
}

// Deployer converges deployed contracts with local artifacts.
type Deployer struct {
	store    store.Store
	keyring  *keys.Keyring
	dial     Dialer
	binders  BinderFactory
	hasher   *Hasher
	networks map[string]environment.Network
	lockTTL  time.Duration
	console  *console.Console
	logger   *slog.Logger
}

// DeployerConfig holds deploy stage settings.
type DeployerConfig struct {
	Networks map[string]environment.Network
	LockTTL  time.Duration
	Hasher   *Hasher
}

// NewDeployer creates a deployer.
func NewDeployer(cfg DeployerConfig, s store.Store, keyring *keys.Keyring, dial Dialer, binders BinderFactory, con *console.Console, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	if con == nil {
		con = console.Discard()
	}
	if cfg.Networks == nil {
		cfg.Networks = environment.DefaultNetworks()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Hasher == nil {
		cfg.Hasher = NewHasher(0)
	}
	return &Deployer{
		store:    s,
		keyring:  keyring,
		dial:     dial,
		binders:  binders,
		hasher:   cfg.Hasher,
		networks: cfg.Networks,
		lockTTL:  cfg.LockTTL,
		console:  con,
		logger:   logger.With("component", "deployer"),
	}
}

// deployRun carries the state of one deploy stage.
type deployRun struct {
	*Deployer
	req      DeployRequest
	settings *environment.Environment
	network  environment.Network
	policy   environment.Policy
	client   Network
	source   *keys.Account
	binder   Binder
	runID    string
	logger   *slog.Logger
}

// Deploy runs the deploy stage. A workspace without an environments file is
// left untouched.
func (d *Deployer) Deploy(ctx context.Context, req DeployRequest) error {
	settings, err := envfile.Load(req.Root, req.Environment)
	if err != nil {
		return err
	}
	if settings == nil {
		d.logger.Debug("no environments file, skipping deploy", "root", req.Root)
		return nil
	}

	network, err := environment.ResolveNetwork(settings.Network, d.networks)
	if err != nil {
		return err
	}
	d.console.Task("using %s", network.Describe())

	run := &deployRun{
		Deployer: d,
		req:      req,
		settings: settings,
		network:  network,
		policy:   environment.PolicyFor(req.Environment),
		client:   d.dial(network),
		binder:   d.binders(req.Root),
		runID:    uuid.NewString(),
	}
	run.logger = d.logger.With("run_id", run.runID, "environment", string(req.Environment))

	lockKey := filepath.Clean(req.Root)
	if err := d.store.AcquireLock(ctx, lockKey, run.runID, d.lockTTL); err != nil {
		return err
	}
	defer func() {
		if err := d.store.ReleaseLock(context.WithoutCancel(ctx), lockKey, run.runID); err != nil {
			run.logger.Warn("failed to release workspace lock", "error", err)
		}
	}()

	var funder keys.Funder
	if run.policy.FundAccounts {
		funder = run.client
	}
	run.source, err = d.keyring.Ensure(ctx, settings.Accounts, funder)
	if err != nil {
		return err
	}

	if run.policy.ExplicitIDs {
		return run.explicit(ctx)
	}
	return run.converge(ctx)
}

// converge deploys every built contract that is new or changed, in
// configuration order first.
func (r *deployRun) converge(ctx context.Context) error {
	for _, c := range r.settings.ClientContracts() {
		if !Exists(r.artifactPath(c.Name)) {
			return deploy.NewBadContractNameError(c.Name)
		}
	}

	for _, name := range deploy.OrderContracts(r.req.Built, r.settings.Contracts) {
		settings, listed := r.settings.Contract(name)
		if listed && !settings.Client {
			r.logger.Debug("contract is not a client, skipping", "contract", name)
			continue
		}

		id := settings.ID
		if id == "" {
			if !Exists(r.artifactPath(name)) {
				return deploy.NewBadContractNameError(name)
			}
			var deployed bool
			var err error
			id, deployed, err = r.deployContract(ctx, name)
			if err != nil {
				return err
			}
			if !deployed {
				continue
			}
		}

		if r.policy.RunInitScripts && settings.Init != "" {
			if err := r.runInit(ctx, name, id, settings.Init); err != nil {
				return err
			}
		}
		if err := r.bind(ctx, name, id); err != nil {
			return err
		}
	}
	return nil
}

// explicit resolves client contracts through their configured ids. A
// contract without an id must already be up to date.
func (r *deployRun) explicit(ctx context.Context) error {
	for _, c := range r.settings.ClientContracts() {
		if c.ID != "" {
			if !strkey.IsValidContract(c.ID) {
				return deploy.NewInvalidContractIDError(c.Name, c.ID)
			}
			if err := r.bind(ctx, c.Name, c.ID); err != nil {
				return err
			}
			continue
		}

		if !Exists(r.artifactPath(c.Name)) {
			return deploy.NewBadContractNameError(c.Name)
		}
		if _, _, err := r.deployContract(ctx, c.Name); err != nil {
			return err
		}
	}
	return nil
}

// deployContract runs the state machine for one contract. It returns the
// contract id and whether a new deployment was made.
func (r *deployRun) deployContract(ctx context.Context, name string) (string, bool, error) {
	path := r.artifactPath(name)
	hash, err := r.hasher.Hash(path)
	if err != nil {
		return "", false, err
	}

	contract := &deploy.Contract{Name: name, LocalHash: hash}
	obs := deploy.Observation{LocalHash: hash}

	alias, err := r.store.GetAlias(ctx, name, r.network.Passphrase)
	switch {
	case err == nil:
		obs.HasAlias = true
		contract.ContractID = alias.ContractID
		remote, err := r.client.GetContractWasm(ctx, alias.ContractID)
		switch {
		case err == nil:
			obs.RemoteFound = true
			obs.RemoteHash = HashBytes(remote)
		case errors.Is(err, rpc.ErrNotFound):
			r.logger.Info("aliased contract not found on network", "contract", name, "contract_id", alias.ContractID)
		default:
			return "", false, err
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return "", false, err
	}

	contract.State = deploy.Assess(obs)
	plan := deploy.DeterminePath(contract.State, r.policy)
	r.logger.Debug("contract assessed", "contract", name, "state", contract.State, "local_hash", hash)

	if plan.Skip() {
		r.console.Info("contract %q is up to date", name)
		return contract.ContractID, false, nil
	}
	if !plan.Valid {
		r.logger.Warn("contract rejected", "contract", name, "state", contract.State, "reason", plan.ErrorReason)
		r.console.Error("contract %q rejected", name)
		return "", false, deploy.NewPolicyError(name, r.policy.Environment, plan.ErrorReason)
	}

	action := store.ActionDeployed
	if contract.State == deploy.StateNeedsUpdate {
		action = store.ActionRedeployed
		r.console.Subtask("updating contract %q", name)
	}

	wasm, err := os.ReadFile(path)
	if err != nil {
		return "", false, NewIOError("read", path, err)
	}

	r.console.Subtask("installing %q wasm bytecode on-chain", name)
	wasmHash, err := r.client.InstallContract(ctx, wasm, r.source)
	if err != nil {
		return "", false, err
	}
	r.console.Plain("    hash: %s", wasmHash)

	r.console.Subtask("instantiating %q smart contract", name)
	id, err := r.client.DeployContract(ctx, wasmHash, r.source)
	if err != nil {
		return "", false, err
	}
	r.console.Plain("    contract_id: %s", id)

	err = r.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.PutAlias(ctx, &store.Alias{
			Name:       name,
			Passphrase: r.network.Passphrase,
			ContractID: id,
			WasmHash:   hash,
		}); err != nil {
			return err
		}
		return tx.RecordDeployment(ctx, &store.HistoryEntry{
			RunID:       r.runID,
			Contract:    name,
			Environment: string(r.policy.Environment),
			Passphrase:  r.network.Passphrase,
			ContractID:  id,
			WasmHash:    hash,
			Action:      action,
		})
	})
	if err != nil {
		return "", false, err
	}

	for _, to := range plan.Transitions {
		if err := contract.Transition(to); err != nil {
			return "", false, err
		}
	}
	contract.ContractID = id
	r.logger.Info("contract deployed", "contract", name, "contract_id", id, "action", action)
	return id, true, nil
}

func (r *deployRun) runInit(ctx context.Context, name, id, init string) error {
	lookup := func(ctx context.Context, account string) (rpc.Signer, error) {
		return r.keyring.Get(ctx, account)
	}
	runner := script.NewRunner(r.req.Root, r.client, lookup, r.console, r.logger)
	return runner.Run(ctx, init, script.Target{
		Contract:   name,
		ContractID: id,
		Network:    r.network,
		Source:     r.source,
	})
}

func (r *deployRun) bind(ctx context.Context, name, id string) error {
	return r.binder.Generate(ctx, bindings.Request{
		Name:       name,
		ContractID: id,
		Network:    r.network,
		AllowHTTP:  r.policy.AllowHTTP,
	})
}

func (r *deployRun) artifactPath(name string) string {
	return filepath.Join(r.req.OutputDir, build.ArtifactName(name))
}
