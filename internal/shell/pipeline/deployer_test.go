package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/trellis/internal/core/deploy"
	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/core/strkey"
	"github.com/artpar/trellis/internal/shell/bindings"
	"github.com/artpar/trellis/internal/shell/console"
	"github.com/artpar/trellis/internal/shell/keys"
	"github.com/artpar/trellis/internal/shell/rpc"
	"github.com/artpar/trellis/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

// mockNetwork is an in-memory ledger of installed code and instances.
type mockNetwork struct {
	code      map[string][]byte // wasm hash -> code
	instances map[string]string // contract id -> wasm hash
	installs  int
	invoked   []string
	funded    []string
	wasmErr   error
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{code: map[string][]byte{}, instances: map[string]string{}}
}

func (m *mockNetwork) InstallContract(ctx context.Context, wasm []byte, source rpc.Signer) (string, error) {
	m.installs++
	hash := HashBytes(wasm)
	m.code[hash] = wasm
	return hash, nil
}

func (m *mockNetwork) DeployContract(ctx context.Context, wasmHash string, source rpc.Signer) (string, error) {
	seed := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", wasmHash, len(m.instances))))
	id, err := strkey.Encode(strkey.VersionContract, seed[:])
	if err != nil {
		return "", err
	}
	m.instances[id] = wasmHash
	return id, nil
}

func (m *mockNetwork) GetContractWasm(ctx context.Context, contractID string) ([]byte, error) {
	if m.wasmErr != nil {
		return nil, m.wasmErr
	}
	hash, ok := m.instances[contractID]
	if !ok {
		return nil, rpc.NewRPCError("getContractWasm", rpc.CodeNotFound, "not found", rpc.ErrNotFound)
	}
	return m.code[hash], nil
}

func (m *mockNetwork) InvokeContract(ctx context.Context, contractID, function string, args []string, source rpc.Signer) (json.RawMessage, error) {
	m.invoked = append(m.invoked, function)
	return json.RawMessage(`null`), nil
}

func (m *mockNetwork) FundAccount(ctx context.Context, address string) error {
	m.funded = append(m.funded, address)
	return nil
}

type mockBinder struct {
	requests []bindings.Request
}

func (m *mockBinder) Generate(ctx context.Context, req bindings.Request) error {
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockBinder) names() []string {
	var names []string
	for _, r := range m.requests {
		names = append(names, r.Name)
	}
	return names
}

type deployFixture struct {
	deployer *Deployer
	network  *mockNetwork
	binder   *mockBinder
	store    store.Store
	out      *bytes.Buffer
	root     string
	outDir   string
}

func setupDeployer(t *testing.T) *deployFixture {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &deployFixture{
		network: newMockNetwork(),
		binder:  &mockBinder{},
		store:   s,
		out:     &bytes.Buffer{},
		root:    t.TempDir(),
	}
	f.outDir = filepath.Join(f.root, "target", "trellis")

	con := console.New(f.out, false)
	keyring := keys.NewKeyring(s, "test-secret", con, nil)
	f.deployer = NewDeployer(DeployerConfig{}, s, keyring,
		func(environment.Network) Network { return f.network },
		func(string) Binder { return f.binder },
		con, nil)
	return f
}

func (f *deployFixture) writeEnvironments(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "environments.toml"), []byte(content), 0o644))
}

func (f *deployFixture) writeArtifact(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.outDir, name+".wasm")
	require.NoError(t, os.MkdirAll(f.outDir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	// distinct mtimes keep the hash cache honest across rewrites
	stamp := time.Now().Add(time.Duration(len(content)) * time.Second)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

func (f *deployFixture) deploy(env environment.Name, built ...string) error {
	return f.deployer.Deploy(context.Background(), DeployRequest{
		Root:        f.root,
		OutputDir:   f.outDir,
		Environment: env,
		Built:       built,
	})
}

const devEnvironments = `
[development]
network = { rpc-url = "http://localhost:8000/rpc", network-passphrase = "Standalone Network ; February 2017" }
accounts = ["alice"]

[development.contracts]
counter.client = true
`

func validContractID(t *testing.T) string {
	t.Helper()
	id, err := strkey.Encode(strkey.VersionContract, make([]byte, 32))
	require.NoError(t, err)
	return id
}

// =============================================================================
// Development Tests
// =============================================================================

func TestDeploy_NoEnvironmentsFile(t *testing.T) {
	f := setupDeployer(t)
	f.writeArtifact(t, "counter", "v1")

	require.NoError(t, f.deploy(environment.Development, "counter"))
	assert.Zero(t, f.network.installs)
	assert.Empty(t, f.binder.requests)
	assert.Empty(t, f.out.String())
}

func TestDeploy_FirstDeployThenUpToDate(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments)
	f.writeArtifact(t, "counter", "v1")

	require.NoError(t, f.deploy(environment.Development, "counter"))
	assert.Equal(t, 1, f.network.installs)
	assert.Equal(t, []string{"counter"}, f.binder.names())
	assert.Contains(t, f.out.String(), "using network at http://localhost:8000/rpc")
	assert.Contains(t, f.out.String(), `creating keys for "alice"`)
	assert.Len(t, f.network.funded, 1)

	alias, err := f.store.GetAlias(context.Background(), "counter", "Standalone Network ; February 2017")
	require.NoError(t, err)
	assert.True(t, strkey.IsValidContract(alias.ContractID))
	assert.Equal(t, HashBytes([]byte("v1")), alias.WasmHash)
	assert.Equal(t, alias.ContractID, f.binder.requests[0].ContractID)
	assert.True(t, f.binder.requests[0].AllowHTTP)

	f.out.Reset()
	require.NoError(t, f.deploy(environment.Development, "counter"))
	assert.Equal(t, 1, f.network.installs)
	assert.Len(t, f.binder.requests, 1)
	assert.Contains(t, f.out.String(), `contract "counter" is up to date`)
	assert.Len(t, f.network.funded, 1)

	history, err := f.store.ListHistory(context.Background(), "counter", store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.ActionDeployed, history[0].Action)
}

func TestDeploy_RedeploysChangedContract(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments)
	f.writeArtifact(t, "counter", "v1")
	require.NoError(t, f.deploy(environment.Development, "counter"))
	first, err := f.store.GetAlias(context.Background(), "counter", "Standalone Network ; February 2017")
	require.NoError(t, err)

	f.writeArtifact(t, "counter", "v2-longer")
	f.out.Reset()
	require.NoError(t, f.deploy(environment.Development, "counter"))

	assert.Equal(t, 2, f.network.installs)
	assert.Contains(t, f.out.String(), `updating contract "counter"`)

	second, err := f.store.GetAlias(context.Background(), "counter", "Standalone Network ; February 2017")
	require.NoError(t, err)
	assert.NotEqual(t, first.ContractID, second.ContractID)
	assert.Equal(t, HashBytes([]byte("v2-longer")), second.WasmHash)

	history, err := f.store.ListHistory(context.Background(), "counter", store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.ActionRedeployed, history[0].Action)
}

func TestDeploy_AliasMissingRemotelyRedeploys(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments)
	f.writeArtifact(t, "counter", "v1")
	require.NoError(t, f.store.PutAlias(context.Background(), &store.Alias{
		Name: "counter", Passphrase: "Standalone Network ; February 2017",
		ContractID: validContractID(t), WasmHash: HashBytes([]byte("v1")),
	}))

	require.NoError(t, f.deploy(environment.Development, "counter"))
	assert.Equal(t, 1, f.network.installs)

	history, err := f.store.ListHistory(context.Background(), "counter", store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.ActionDeployed, history[0].Action)
}

func TestDeploy_RemoteLookupFailureStops(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments)
	f.writeArtifact(t, "counter", "v1")
	require.NoError(t, f.deploy(environment.Development, "counter"))

	f.network.wasmErr = rpc.NewRPCError("getContractWasm", 0, "connection refused", rpc.ErrTransport)
	err := f.deploy(environment.Development, "counter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpc.ErrTransport))
	assert.Equal(t, 1, f.network.installs)
}

func TestDeploy_MissingArtifactIsBadContractName(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments)

	err := f.deploy(environment.Development, "other")
	require.Error(t, err)
	assert.True(t, errors.Is(err, deploy.ErrBadContractName))
	assert.Equal(t, `no contract named "counter"`, err.Error())
}

func TestDeploy_NonClientSkippedUnlistedDeployed(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments+"hidden.client = false\n")
	f.writeArtifact(t, "counter", "c")
	f.writeArtifact(t, "hidden", "h")
	f.writeArtifact(t, "extra", "e")

	require.NoError(t, f.deploy(environment.Development, "extra", "hidden", "counter"))
	assert.Equal(t, []string{"counter", "extra"}, f.binder.names())
	assert.Equal(t, 2, f.network.installs)
}

func TestDeploy_ExplicitIDInDevelopment(t *testing.T) {
	f := setupDeployer(t)
	id := validContractID(t)
	f.writeEnvironments(t, devEnvironments+`token = { client = true, id = "`+id+`", init = "initialize --admin alice" }`+"\n")
	f.writeArtifact(t, "counter", "c")
	f.writeArtifact(t, "token", "t")

	require.NoError(t, f.deploy(environment.Development, "counter", "token"))
	assert.Equal(t, 1, f.network.installs)
	assert.Equal(t, []string{"initialize"}, f.network.invoked)
	require.Len(t, f.binder.requests, 2)
	assert.Equal(t, id, f.binder.requests[1].ContractID)
}

func TestDeploy_InitScriptRunsAfterDeploy(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, `
[testing]
network = { rpc-url = "http://localhost:8000/rpc", network-passphrase = "Standalone Network ; February 2017" }
accounts = ["alice", "bob"]

[testing.contracts.counter]
client = true
init = """
initialize --admin alice
SOURCE_ACCOUNT=bob increment --by 2
"""
`)
	f.writeArtifact(t, "counter", "v1")

	require.NoError(t, f.deploy(environment.Testing, "counter"))
	assert.Equal(t, []string{"initialize", "increment"}, f.network.invoked)
	assert.Contains(t, f.out.String(), `running initialization script for "counter"`)
	assert.Contains(t, f.out.String(), `initialization script for "counter" completed successfully`)
	require.Len(t, f.binder.requests, 1)
	assert.False(t, f.binder.requests[0].AllowHTTP)
}

func TestDeploy_WorkspaceLocked(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments)
	f.writeArtifact(t, "counter", "v1")
	require.NoError(t, f.store.AcquireLock(context.Background(), filepath.Clean(f.root), "other-run", time.Minute))

	err := f.deploy(environment.Development, "counter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrLocked))
	assert.Zero(t, f.network.installs)
}

func TestDeploy_ReleasesLock(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, devEnvironments)
	f.writeArtifact(t, "counter", "v1")

	require.NoError(t, f.deploy(environment.Development, "counter"))
	require.NoError(t, f.store.AcquireLock(context.Background(), filepath.Clean(f.root), "next-run", time.Minute))
}

// =============================================================================
// Production Tests
// =============================================================================

func TestDeploy_ProductionRejectsUndeployed(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, `
[production]
network.name = "local"
accounts = ["deployer"]

[production.contracts]
counter.client = true
`)
	f.writeArtifact(t, "counter", "v1")

	err := f.deploy(environment.Production, "counter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, deploy.ErrRejected))
	assert.Contains(t, err.Error(), "must be identified by its ID in production")
	assert.Zero(t, f.network.installs)
	assert.Empty(t, f.network.funded)
	assert.Contains(t, f.out.String(), "using local network")
}

func TestDeploy_ProductionExplicitID(t *testing.T) {
	f := setupDeployer(t)
	id := validContractID(t)
	f.writeEnvironments(t, `
[production]
network.name = "local"
accounts = ["deployer"]

[production.contracts]
counter = { client = true, id = "`+id+`", init = "initialize --admin deployer" }
`)

	require.NoError(t, f.deploy(environment.Production, "counter"))
	assert.Zero(t, f.network.installs)
	assert.Empty(t, f.network.invoked)
	require.Len(t, f.binder.requests, 1)
	assert.Equal(t, id, f.binder.requests[0].ContractID)
}

func TestDeploy_ProductionInvalidID(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, `
[staging]
network.name = "local"
accounts = ["deployer"]

[staging.contracts]
counter = { client = true, id = "CNOTANID" }
`)

	err := f.deploy(environment.Staging, "counter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, deploy.ErrInvalidContractID))
	assert.Empty(t, f.binder.requests)
}

func TestDeploy_ProductionUpToDateNeedsNoBindings(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, `
[development]
network.name = "local"
accounts = ["deployer"]

[development.contracts]
counter.client = true

[production]
network.name = "local"
accounts = ["deployer"]

[production.contracts]
counter.client = true
`)
	f.writeArtifact(t, "counter", "v1")
	require.NoError(t, f.deploy(environment.Development, "counter"))
	f.binder.requests = nil

	require.NoError(t, f.deploy(environment.Production, "counter"))
	assert.Equal(t, 1, f.network.installs)
	assert.Empty(t, f.binder.requests)
}

const promotedEnvironments = `
[development]
network.name = "local"
accounts = ["deployer"]

[development.contracts]
counter.client = true

[testing]
network.name = "local"
accounts = ["deployer"]

[testing.contracts]
counter.client = true

[staging]
network.name = "local"
accounts = ["deployer"]

[staging.contracts]
counter.client = true
`

func TestDeploy_StagingRejectsChangedContract(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, promotedEnvironments)
	f.writeArtifact(t, "counter", "v1")
	require.NoError(t, f.deploy(environment.Development, "counter"))
	before, err := f.store.GetAlias(context.Background(), "counter", environment.DefaultNetworks()["local"].Passphrase)
	require.NoError(t, err)
	f.binder.requests = nil

	f.writeArtifact(t, "counter", "v2-longer")
	f.out.Reset()
	err = f.deploy(environment.Staging, "counter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, deploy.ErrRejected))
	var policyErr *deploy.PolicyError
	assert.True(t, errors.As(err, &policyErr))
	assert.Contains(t, f.out.String(), `contract "counter" rejected`)

	assert.Equal(t, 1, f.network.installs)
	assert.Empty(t, f.binder.requests)

	after, err := f.store.GetAlias(context.Background(), "counter", before.Passphrase)
	require.NoError(t, err)
	assert.Equal(t, before.ContractID, after.ContractID)
	assert.Equal(t, before.WasmHash, after.WasmHash)

	history, err := f.store.ListHistory(context.Background(), "counter", store.DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestDeploy_TestingRedeploysChangedContract(t *testing.T) {
	f := setupDeployer(t)
	f.writeEnvironments(t, promotedEnvironments)
	f.writeArtifact(t, "counter", "v1")
	require.NoError(t, f.deploy(environment.Testing, "counter"))
	assert.Len(t, f.network.funded, 1)

	f.writeArtifact(t, "counter", "v2-longer")
	require.NoError(t, f.deploy(environment.Testing, "counter"))
	assert.Equal(t, 2, f.network.installs)
	require.Len(t, f.binder.requests, 2)
	assert.False(t, f.binder.requests[1].AllowHTTP)

	history, err := f.store.ListHistory(context.Background(), "counter", store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.ActionRedeployed, history[0].Action)
	assert.Equal(t, string(environment.Testing), history[0].Environment)
}
