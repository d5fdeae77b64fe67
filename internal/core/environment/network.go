package environment

import "fmt"

// =============================================================================
// Network
// =============================================================================

// Network identifies the target network. In configuration it is either a
// named reference or an explicit rpc url and passphrase pair; after
// ResolveNetwork all three fields are set for named networks and RPCURL and
// Passphrase for explicit ones.
type Network struct {
	Name       string `mapstructure:"name"`
	RPCURL     string `mapstructure:"rpc_url"`
	Passphrase string `mapstructure:"passphrase"`
}

// ValidateNetwork checks that exactly one network form is present.
func ValidateNetwork(n Network) error {
	named := n.Name != ""
	explicit := n.RPCURL != "" && n.Passphrase != ""
	partial := (n.RPCURL != "") != (n.Passphrase != "")

	if named == explicit || partial {
		return NewConfigError("ValidateNetwork", "",
			"invalid network: must either specify a network name or both network-passphrase and rpc-url",
			ErrMalformedNetwork)
	}
	return nil
}

// ResolveNetwork turns a configured network into a concrete one, looking up
// named networks in the registry.
func ResolveNetwork(n Network, registry map[string]Network) (Network, error) {
	if err := ValidateNetwork(n); err != nil {
		return Network{}, err
	}
	if n.Name == "" {
		return n, nil
	}

	known, ok := registry[n.Name]
	if !ok || known.RPCURL == "" || known.Passphrase == "" {
		return Network{}, NewConfigError("ResolveNetwork", "",
			fmt.Sprintf("network %q is not configured", n.Name), ErrUnknownNetwork)
	}
	return Network{Name: n.Name, RPCURL: known.RPCURL, Passphrase: known.Passphrase}, nil
}

// Describe returns the phrase used in status output.
func (n Network) Describe() string {
	if n.Name != "" {
		return n.Name + " network"
	}
	return "network at " + n.RPCURL
}

// DefaultNetworks are the named networks known without configuration.
func DefaultNetworks() map[string]Network {
	return map[string]Network{
		"local": {
			RPCURL:     "http://localhost:8000/rpc",
			Passphrase: "Standalone Network ; February 2017",
		},
		"testnet": {
			RPCURL:     "https://soroban-testnet.stellar.org",
			Passphrase: "Test SDF Network ; September 2015",
		},
		"futurenet": {
			RPCURL:     "https://rpc-futurenet.stellar.org",
			Passphrase: "Test SDF Future Network ; October 2022",
		},
	}
}
