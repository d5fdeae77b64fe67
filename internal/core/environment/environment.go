package environment

import (
	"fmt"
	"strings"
)

// =============================================================================
// Environment Names
// =============================================================================

// Name is one of the fixed deployment environments.
type Name string

const (
	Development Name = "development"
	Testing     Name = "testing"
	Staging     Name = "staging"
	Production  Name = "production"
)

// Default is the environment used when none is selected.
const Default = Production

// Names lists every environment in promotion order.
var Names = []Name{Development, Testing, Staging, Production}

// ParseName parses an environment name case-insensitively. An empty string
// yields Default.
func ParseName(s string) (Name, error) {
	if strings.TrimSpace(s) == "" {
		return Default, nil
	}
	name := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, n := range Names {
		if n == name {
			return n, nil
		}
	}
	return "", NewConfigError("ParseName", "",
		fmt.Sprintf("unknown environment %q, expected one of development, testing, staging, production", s),
		ErrUnknownEnvironment)
}

func (n Name) String() string {
	return string(n)
}

// =============================================================================
// Settings
// =============================================================================

// Environment is the validated configuration of one environment.
type Environment struct {
	Name      Name
	Network   Network
	Accounts  []Account
	Contracts []Contract // in declaration order
}

// Contract holds per-contract settings.
type Contract struct {
	Name string

	// Client enables deployment and binding generation for the contract.
	Client bool

	// ID is an explicit, pre-existing contract id.
	ID string

	// Init is a multi-line script run after deployment.
	Init string
}

// Contract returns the settings for the named contract.
func (e Environment) Contract(name string) (Contract, bool) {
	for _, c := range e.Contracts {
		if c.Name == name {
			return c, true
		}
	}
	return Contract{}, false
}

// ClientContracts returns the client-enabled contracts in declaration order.
func (e Environment) ClientContracts() []Contract {
	var result []Contract
	for _, c := range e.Contracts {
		if c.Client {
			result = append(result, c)
		}
	}
	return result
}

// Validate applies the structural rules every environment must satisfy.
func (e Environment) Validate() error {
	if err := ValidateNetwork(e.Network); err != nil {
		return err
	}
	if _, err := DefaultAccount(e.Accounts); err != nil {
		return err
	}
	return nil
}
