package environment

import "fmt"

// =============================================================================
// Accounts
// =============================================================================

// Account is a named identity used as a transaction source.
type Account struct {
	Name    string
	Default bool
}

// DefaultAccount picks the account used as the default source. Exactly one
// account may be flagged default; with none flagged the first account is the
// default, so a lone account is always implicitly default.
func DefaultAccount(accounts []Account) (Account, error) {
	if len(accounts) == 0 {
		return Account{}, NewConfigError("DefaultAccount", "",
			"you need to provide at least one account, to use as the source account for contract deployment and other operations",
			ErrNeedAtLeastOneAccount)
	}

	var flagged []string
	var chosen Account
	for _, a := range accounts {
		if a.Default {
			flagged = append(flagged, a.Name)
			chosen = a
		}
	}

	switch len(flagged) {
	case 0:
		return accounts[0], nil
	case 1:
		return chosen, nil
	default:
		return Account{}, NewConfigError("DefaultAccount", "",
			fmt.Sprintf("can only have one default account; marked as default: %q", flagged),
			ErrOnlyOneDefaultAccount)
	}
}
