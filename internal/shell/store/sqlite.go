package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAlias(ctx context.Context, name, passphrase string) (*Alias, error) {
	return getAlias(ctx, s.db, name, passphrase)
}

func (s *SQLiteStore) PutAlias(ctx context.Context, alias *Alias) error {
	return putAlias(ctx, s.db, alias)
}

func (s *SQLiteStore) ListAliases(ctx context.Context, passphrase string, opts ListOptions) ([]Alias, error) {
	return listAliases(ctx, s.db, passphrase, opts)
}

func (s *SQLiteStore) RecordDeployment(ctx context.Context, entry *HistoryEntry) error {
	return recordDeployment(ctx, s.db, entry)
}

func (s *SQLiteStore) ListHistory(ctx context.Context, contract string, opts ListOptions) ([]HistoryEntry, error) {
	return listHistory(ctx, s.db, contract, opts)
}

func (s *SQLiteStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	return createIdentity(ctx, s.db, identity)
}

func (s *SQLiteStore) GetIdentity(ctx context.Context, name string) (*Identity, error) {
	return getIdentity(ctx, s.db, name)
}

func (s *SQLiteStore) MarkIdentityFunded(ctx context.Context, name string) error {
	return markIdentityFunded(ctx, s.db, name)
}

func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]Identity, error) {
	return listIdentities(ctx, s.db)
}

func (s *SQLiteStore) AcquireLock(ctx context.Context, workspace, owner string, ttl time.Duration) error {
	return acquireLock(ctx, s.db, workspace, owner, ttl)
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, workspace, owner string) error {
	return releaseLock(ctx, s.db, workspace, owner)
}

// =============================================================================
// Transaction Support
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) GetAlias(ctx context.Context, name, passphrase string) (*Alias, error) {
	return getAlias(ctx, s.tx, name, passphrase)
}

func (s *txSQLiteStore) PutAlias(ctx context.Context, alias *Alias) error {
	return putAlias(ctx, s.tx, alias)
}

func (s *txSQLiteStore) ListAliases(ctx context.Context, passphrase string, opts ListOptions) ([]Alias, error) {
	return listAliases(ctx, s.tx, passphrase, opts)
}

func (s *txSQLiteStore) RecordDeployment(ctx context.Context, entry *HistoryEntry) error {
	return recordDeployment(ctx, s.tx, entry)
}

func (s *txSQLiteStore) ListHistory(ctx context.Context, contract string, opts ListOptions) ([]HistoryEntry, error) {
	return listHistory(ctx, s.tx, contract, opts)
}

func (s *txSQLiteStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	return createIdentity(ctx, s.tx, identity)
}

func (s *txSQLiteStore) GetIdentity(ctx context.Context, name string) (*Identity, error) {
	return getIdentity(ctx, s.tx, name)
}

func (s *txSQLiteStore) MarkIdentityFunded(ctx context.Context, name string) error {
	return markIdentityFunded(ctx, s.tx, name)
}

func (s *txSQLiteStore) ListIdentities(ctx context.Context) ([]Identity, error) {
	return listIdentities(ctx, s.tx)
}

func (s *txSQLiteStore) AcquireLock(ctx context.Context, workspace, owner string, ttl time.Duration) error {
	return acquireLock(ctx, s.tx, workspace, owner, ttl)
}

func (s *txSQLiteStore) ReleaseLock(ctx context.Context, workspace, owner string) error {
	return releaseLock(ctx, s.tx, workspace, owner)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Alias Operations
// =============================================================================

type aliasRow struct {
	Name       string `db:"name"`
	Passphrase string `db:"passphrase"`
	ContractID string `db:"contract_id"`
	WasmHash   string `db:"wasm_hash"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func getAlias(ctx context.Context, exec executor, name, passphrase string) (*Alias, error) {
	query := `SELECT * FROM contract_aliases WHERE name = ? AND passphrase = ?`

	var row aliasRow
	err := exec.GetContext(ctx, &row, query, name, passphrase)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetAlias", "alias", name, "alias not found", ErrNotFound)
		}
		return nil, NewStoreError("GetAlias", "alias", name, err.Error(), err)
	}

	return rowToAlias(&row)
}

// putAlias inserts an alias or replaces the contract id of an existing one.
func putAlias(ctx context.Context, exec executor, alias *Alias) error {
	now := time.Now().UTC()
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = now
	}
	alias.UpdatedAt = now

	query := `
		INSERT INTO contract_aliases (name, passphrase, contract_id, wasm_hash, created_at, updated_at)
		VALUES (:name, :passphrase, :contract_id, :wasm_hash, :created_at, :updated_at)
		ON CONFLICT(name, passphrase) DO UPDATE SET
			contract_id = excluded.contract_id,
			wasm_hash = excluded.wasm_hash,
			updated_at = excluded.updated_at`

	row := map[string]any{
		"name":        alias.Name,
		"passphrase":  alias.Passphrase,
		"contract_id": alias.ContractID,
		"wasm_hash":   alias.WasmHash,
		"created_at":  alias.CreatedAt.Format(time.RFC3339),
		"updated_at":  alias.UpdatedAt.Format(time.RFC3339),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("PutAlias", "alias", alias.Name, err.Error(), err)
	}
	return nil
}

func listAliases(ctx context.Context, exec executor, passphrase string, opts ListOptions) ([]Alias, error) {
	opts = opts.Normalize()

	var rows []aliasRow
	var err error
	if passphrase == "" {
		query := `SELECT * FROM contract_aliases ORDER BY passphrase, name LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM contract_aliases WHERE passphrase = ? ORDER BY name LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, passphrase, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListAliases", "alias", "", err.Error(), err)
	}

	aliases := make([]Alias, 0, len(rows))
	for _, row := range rows {
		alias, err := rowToAlias(&row)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, *alias)
	}
	return aliases, nil
}

func rowToAlias(row *aliasRow) (*Alias, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToAlias", "alias", row.Name, "invalid created_at", ErrInvalidData)
	}
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToAlias", "alias", row.Name, "invalid updated_at", ErrInvalidData)
	}
	return &Alias{
		Name:       row.Name,
		Passphrase: row.Passphrase,
		ContractID: row.ContractID,
		WasmHash:   row.WasmHash,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// =============================================================================
// Deployment History
// =============================================================================

type historyRow struct {
	ID          string `db:"id"`
	RunID       string `db:"run_id"`
	Contract    string `db:"contract"`
	Environment string `db:"environment"`
	Passphrase  string `db:"passphrase"`
	ContractID  string `db:"contract_id"`
	WasmHash    string `db:"wasm_hash"`
	Action      string `db:"action"`
	CreatedAt   string `db:"created_at"`
}

func recordDeployment(ctx context.Context, exec executor, entry *HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deployments (
			id, run_id, contract, environment, passphrase,
			contract_id, wasm_hash, action, created_at
		) VALUES (
			:id, :run_id, :contract, :environment, :passphrase,
			:contract_id, :wasm_hash, :action, :created_at
		)`

	row := map[string]any{
		"id":          entry.ID,
		"run_id":      entry.RunID,
		"contract":    entry.Contract,
		"environment": entry.Environment,
		"passphrase":  entry.Passphrase,
		"contract_id": entry.ContractID,
		"wasm_hash":   entry.WasmHash,
		"action":      string(entry.Action),
		"created_at":  entry.CreatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployments.id") {
			return NewStoreError("RecordDeployment", "deployment", entry.ID, "deployment with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("RecordDeployment", "deployment", entry.ID, err.Error(), err)
	}
	return nil
}

func listHistory(ctx context.Context, exec executor, contract string, opts ListOptions) ([]HistoryEntry, error) {
	opts = opts.Normalize()

	var rows []historyRow
	var err error
	if contract == "" {
		query := `SELECT * FROM deployments ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM deployments WHERE contract = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, contract, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListHistory", "deployment", "", err.Error(), err)
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
		if err != nil {
			return nil, NewStoreError("ListHistory", "deployment", row.ID, "invalid created_at", ErrInvalidData)
		}
		entries = append(entries, HistoryEntry{
			ID:          row.ID,
			RunID:       row.RunID,
			Contract:    row.Contract,
			Environment: row.Environment,
			Passphrase:  row.Passphrase,
			ContractID:  row.ContractID,
			WasmHash:    row.WasmHash,
			Action:      Action(row.Action),
			CreatedAt:   createdAt,
		})
	}
	return entries, nil
}

// =============================================================================
// Identity Operations
// =============================================================================

type identityRow struct {
	Name       string `db:"name"`
	Address    string `db:"address"`
	SealedSeed string `db:"sealed_seed"`
	Funded     bool   `db:"funded"`
	CreatedAt  string `db:"created_at"`
}

func createIdentity(ctx context.Context, exec executor, identity *Identity) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO identities (name, address, sealed_seed, funded, created_at)
		VALUES (:name, :address, :sealed_seed, :funded, :created_at)`

	row := map[string]any{
		"name":        identity.Name,
		"address":     identity.Address,
		"sealed_seed": identity.SealedSeed,
		"funded":      identity.Funded,
		"created_at":  identity.CreatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: identities.") {
			return NewStoreError("CreateIdentity", "identity", identity.Name, "identity already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateIdentity", "identity", identity.Name, err.Error(), err)
	}
	return nil
}

func getIdentity(ctx context.Context, exec executor, name string) (*Identity, error) {
	query := `SELECT * FROM identities WHERE name = ?`

	var row identityRow
	err := exec.GetContext(ctx, &row, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetIdentity", "identity", name, "identity not found", ErrNotFound)
		}
		return nil, NewStoreError("GetIdentity", "identity", name, err.Error(), err)
	}
	return rowToIdentity(&row)
}

func markIdentityFunded(ctx context.Context, exec executor, name string) error {
	result, err := exec.ExecContext(ctx, `UPDATE identities SET funded = 1 WHERE name = ?`, name)
	if err != nil {
		return NewStoreError("MarkIdentityFunded", "identity", name, err.Error(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewStoreError("MarkIdentityFunded", "identity", name, "identity not found", ErrNotFound)
	}
	return nil
}

func listIdentities(ctx context.Context, exec executor) ([]Identity, error) {
	var rows []identityRow
	if err := exec.SelectContext(ctx, &rows, `SELECT * FROM identities ORDER BY name`); err != nil {
		return nil, NewStoreError("ListIdentities", "identity", "", err.Error(), err)
	}

	identities := make([]Identity, 0, len(rows))
	for _, row := range rows {
		identity, err := rowToIdentity(&row)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, nil
}

func rowToIdentity(row *identityRow) (*Identity, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToIdentity", "identity", row.Name, "invalid created_at", ErrInvalidData)
	}
	return &Identity{
		Name:       row.Name,
		Address:    row.Address,
		SealedSeed: row.SealedSeed,
		Funded:     row.Funded,
		CreatedAt:  createdAt,
	}, nil
}

// =============================================================================
// Workspace Lock
// =============================================================================

// acquireLock takes or renews the workspace lock. An expired lock held by
// another owner is taken over.
func acquireLock(ctx context.Context, exec executor, workspace, owner string, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	query := `
		INSERT INTO workspace_locks (workspace, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(workspace) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE workspace_locks.owner = excluded.owner OR workspace_locks.expires_at <= ?`

	result, err := exec.ExecContext(ctx, query, workspace, owner, expires.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return NewStoreError("AcquireLock", "lock", workspace, err.Error(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewStoreError("AcquireLock", "lock", workspace, "held by another process", ErrLocked)
	}
	return nil
}

func releaseLock(ctx context.Context, exec executor, workspace, owner string) error {
	query := `DELETE FROM workspace_locks WHERE workspace = ? AND owner = ?`
	if _, err := exec.ExecContext(ctx, query, workspace, owner); err != nil {
		return NewStoreError("ReleaseLock", "lock", workspace, err.Error(), err)
	}
	return nil
}
