// Package envfile reads the per-environment settings file of a workspace.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"

	"github.com/artpar/trellis/internal/core/environment"
)

// FileName is the settings file looked up in the workspace root.
const FileName = "environments.toml"

// =============================================================================
// File Schema
// =============================================================================

type fileEnvironment struct {
	Network   fileNetwork             `toml:"network"`
	Accounts  []any                   `toml:"accounts"`
	Contracts map[string]fileContract `toml:"contracts"`
}

type fileNetwork struct {
	Name       string `toml:"name"`
	RPCURL     string `toml:"rpc-url"`
	Passphrase string `toml:"network-passphrase"`
}

type fileContract struct {
	Client bool   `toml:"client"`
	ID     string `toml:"id"`
	Init   string `toml:"init"`
}

// =============================================================================
// Loading
// =============================================================================

// Load reads <root>/environments.toml and returns the validated settings for
// env. A missing file yields (nil, nil).
func Load(root string, env environment.Name) (*environment.Environment, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	return Parse(data, env)
}

// Parse decodes settings file contents and returns the validated settings
// for env.
func Parse(data []byte, env environment.Name) (*environment.Environment, error) {
	var envs map[string]fileEnvironment
	if err := toml.Unmarshal(data, &envs); err != nil {
		return nil, environment.NewConfigError("Parse", "",
			fmt.Sprintf("parsing %s: %v", FileName, err), environment.ErrInvalidSettings)
	}

	raw, ok := envs[string(env)]
	if !ok {
		return nil, environment.NewConfigError("Parse", string(env),
			fmt.Sprintf("no settings for current environment %q found in %s", env, FileName),
			environment.ErrNoSettingsForEnv)
	}

	order, err := contractOrder(data, string(env))
	if err != nil {
		return nil, environment.NewConfigError("Parse", string(env),
			fmt.Sprintf("parsing %s: %v", FileName, err), environment.ErrInvalidSettings)
	}

	accounts, err := decodeAccounts(raw.Accounts)
	if err != nil {
		return nil, environment.NewConfigError("Parse", string(env), err.Error(), environment.ErrInvalidSettings)
	}

	result := &environment.Environment{
		Name: env,
		Network: environment.Network{
			Name:       strings.TrimSpace(raw.Network.Name),
			RPCURL:     strings.TrimSpace(raw.Network.RPCURL),
			Passphrase: raw.Network.Passphrase,
		},
		Accounts: accounts,
	}
	for _, name := range order {
		c, ok := raw.Contracts[name]
		if !ok {
			continue
		}
		result.Contracts = append(result.Contracts, environment.Contract{
			Name:   name,
			Client: c.Client,
			ID:     strings.TrimSpace(c.ID),
			Init:   c.Init,
		})
	}

	if err := result.Validate(); err != nil {
		var ce *environment.ConfigError
		if errors.As(err, &ce) && ce.Environment == "" {
			ce.Environment = string(env)
		}
		return nil, err
	}
	return result, nil
}

// decodeAccounts accepts both "name" and { name = "...", default = true }.
func decodeAccounts(items []any) ([]environment.Account, error) {
	accounts := make([]environment.Account, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			accounts = append(accounts, environment.Account{Name: v})
		case map[string]any:
			name, _ := v["name"].(string)
			if name == "" {
				return nil, fmt.Errorf("account %d: missing name", i+1)
			}
			def, _ := v["default"].(bool)
			accounts = append(accounts, environment.Account{Name: name, Default: def})
		default:
			return nil, fmt.Errorf("account %d: expected a name or a table", i+1)
		}
	}
	return accounts, nil
}

// =============================================================================
// Key Order
// =============================================================================

// contractOrder returns the contract names of env in the order they first
// appear in the document. Maps lose that order, so the raw expressions are
// walked.
func contractOrder(data []byte, env string) ([]string, error) {
	var order []string
	seen := map[string]bool{}
	record := func(path []string) {
		if len(path) < 3 || path[0] != env || path[1] != "contracts" || seen[path[2]] {
			return
		}
		seen[path[2]] = true
		order = append(order, path[2])
	}

	p := unstable.Parser{}
	p.Reset(data)

	var table []string
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = keyParts(expr.Key())
			record(table)
		case unstable.KeyValue:
			path := append(append([]string{}, table...), keyParts(expr.Key())...)
			record(path)
			if value := expr.Value(); value.Kind == unstable.InlineTable {
				it := value.Children()
				for it.Next() {
					kv := it.Node()
					record(append(append([]string{}, path...), keyParts(kv.Key())...))
				}
			}
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return order, nil
}

func keyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}
