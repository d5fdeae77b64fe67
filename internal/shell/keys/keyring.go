// Package keys creates and loads the deployer accounts of an environment.
package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/trellis/internal/core/crypto"
	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/shell/console"
	"github.com/artpar/trellis/internal/shell/store"
)

// ErrNoSecret is returned when identities must be sealed or opened without a
// configured keyring secret.
var ErrNoSecret = errors.New("keyring secret is not configured")

// Funder funds newly created accounts.
type Funder interface {
	FundAccount(ctx context.Context, address string) error
}

// Account is an unlocked identity usable as a call source.
type Account struct {
	Name     string
	identity crypto.Identity
}

// Address returns the account's public address.
func (a *Account) Address() string {
	return a.identity.Address
}

// Sign signs payload with the account's key.
func (a *Account) Sign(payload []byte) string {
	return a.identity.Sign(payload)
}

// Keyring manages identities stored in the pipeline store.
type Keyring struct {
	store   store.Store
	secret  string
	console *console.Console
	logger  *slog.Logger
}

// NewKeyring creates a keyring. The secret seals identity seeds at rest.
func NewKeyring(s store.Store, secret string, con *console.Console, logger *slog.Logger) *Keyring {
	if logger == nil {
		logger = slog.Default()
	}
	if con == nil {
		con = console.Discard()
	}
	return &Keyring{
		store:   s,
		secret:  secret,
		console: con,
		logger:  logger.With("component", "keyring"),
	}
}

// Ensure makes sure every account exists, creating missing ones, and returns
// the unlocked default account. When funder is non-nil, accounts that were
// never funded are funded through it.
func (k *Keyring) Ensure(ctx context.Context, accounts []environment.Account, funder Funder) (*Account, error) {
	def, err := environment.DefaultAccount(accounts)
	if err != nil {
		return nil, err
	}
	if k.secret == "" {
		return nil, ErrNoSecret
	}

	var defaultAccount *Account
	for _, acct := range accounts {
		unlocked, err := k.ensureOne(ctx, acct.Name)
		if err != nil {
			return nil, err
		}
		if funder != nil {
			if err := k.fund(ctx, unlocked, funder); err != nil {
				return nil, err
			}
		}
		if acct.Name == def.Name {
			defaultAccount = unlocked
		}
	}

	k.logger.Debug("default account selected", "account", def.Name, "address", defaultAccount.Address())
	return defaultAccount, nil
}

// Get unlocks an existing identity by name.
func (k *Keyring) Get(ctx context.Context, name string) (*Account, error) {
	if k.secret == "" {
		return nil, ErrNoSecret
	}
	record, err := k.store.GetIdentity(ctx, name)
	if err != nil {
		return nil, err
	}
	return k.unlock(record)
}

func (k *Keyring) ensureOne(ctx context.Context, name string) (*Account, error) {
	record, err := k.store.GetIdentity(ctx, name)
	if err == nil {
		k.console.Info("account %q already exists, skipping key creation", name)
		return k.unlock(record)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	k.console.Subtask("creating keys for %q", name)
	identity, seed, err := crypto.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.SealSeed(seed, k.secret)
	if err != nil {
		return nil, fmt.Errorf("sealing seed for %q: %w", name, err)
	}
	if err := k.store.CreateIdentity(ctx, &store.Identity{
		Name:       name,
		Address:    identity.Address,
		SealedSeed: sealed,
	}); err != nil {
		return nil, err
	}
	k.logger.Info("identity created", "account", name, "address", identity.Address)
	return &Account{Name: name, identity: identity}, nil
}

func (k *Keyring) unlock(record *store.Identity) (*Account, error) {
	seed, err := crypto.OpenSeed(record.SealedSeed, k.secret)
	if err != nil {
		return nil, fmt.Errorf("unlocking %q: %w", record.Name, err)
	}
	identity, err := crypto.IdentityFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("unlocking %q: %w", record.Name, err)
	}
	return &Account{Name: record.Name, identity: identity}, nil
}

func (k *Keyring) fund(ctx context.Context, acct *Account, funder Funder) error {
	record, err := k.store.GetIdentity(ctx, acct.Name)
	if err != nil {
		return err
	}
	if record.Funded {
		return nil
	}
	if err := funder.FundAccount(ctx, acct.Address()); err != nil {
		return fmt.Errorf("funding %q: %w", acct.Name, err)
	}
	k.logger.Info("account funded", "account", acct.Name)
	return k.store.MarkIdentityFunded(ctx, acct.Name)
}
