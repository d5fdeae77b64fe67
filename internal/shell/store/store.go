package store

import (
	"context"
	"time"
)

// =============================================================================
// Records
// =============================================================================

// Alias maps a contract name on one network to its deployed contract id.
type Alias struct {
	Name       string    `yaml:"name"`
	Passphrase string    `yaml:"network_passphrase"`
	ContractID string    `yaml:"contract_id"`
	WasmHash   string    `yaml:"wasm_hash"`
	CreatedAt  time.Time `yaml:"created_at"`
	UpdatedAt  time.Time `yaml:"updated_at"`
}

// Action names the kind of history entry.
type Action string

const (
	ActionDeployed   Action = "deployed"
	ActionRedeployed Action = "redeployed"
)

// HistoryEntry records one install and deploy performed by a run.
type HistoryEntry struct {
	ID          string    `yaml:"id"`
	RunID       string    `yaml:"run_id"`
	Contract    string    `yaml:"contract"`
	Environment string    `yaml:"environment"`
	Passphrase  string    `yaml:"network_passphrase"`
	ContractID  string    `yaml:"contract_id"`
	WasmHash    string    `yaml:"wasm_hash"`
	Action      Action    `yaml:"action"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// Identity is a named deployer account with its encrypted seed.
type Identity struct {
	Name       string
	Address    string
	SealedSeed string
	Funded     bool
	CreatedAt  time.Time
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the deployment pipeline.
type Store interface {
	// Alias operations
	GetAlias(ctx context.Context, name, passphrase string) (*Alias, error)
	PutAlias(ctx context.Context, alias *Alias) error
	ListAliases(ctx context.Context, passphrase string, opts ListOptions) ([]Alias, error)

	// Deployment history
	RecordDeployment(ctx context.Context, entry *HistoryEntry) error
	ListHistory(ctx context.Context, contract string, opts ListOptions) ([]HistoryEntry, error)

	// Identity operations
	CreateIdentity(ctx context.Context, identity *Identity) error
	GetIdentity(ctx context.Context, name string) (*Identity, error)
	MarkIdentityFunded(ctx context.Context, name string) error
	ListIdentities(ctx context.Context) ([]Identity, error)

	// Workspace lock
	AcquireLock(ctx context.Context, workspace, owner string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, workspace, owner string) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
