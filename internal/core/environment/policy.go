package environment

// =============================================================================
// Environment Policy
// =============================================================================

// Policy is the set of rules a pipeline run follows for one environment.
type Policy struct {
	Environment Name

	// DeployNew allows installing and instantiating contracts that have no
	// live deployment yet.
	DeployNew bool

	// RedeployOnMismatch allows replacing a deployment whose artifact hash
	// differs from the local build.
	RedeployOnMismatch bool

	// ExplicitIDs resolves contracts through their configured id instead of
	// the build and deploy path.
	ExplicitIDs bool

	// RunInitScripts enables post-deploy initialization scripts.
	RunInitScripts bool

	// FundAccounts funds newly created accounts through the network.
	FundAccounts bool

	// AllowHTTP marks generated clients as allowed to use plain http.
	AllowHTTP bool
}

// PolicyFor returns the policy of the named environment.
func PolicyFor(name Name) Policy {
	switch name {
	case Development:
		return Policy{
			Environment:        name,
			DeployNew:          true,
			RedeployOnMismatch: true,
			RunInitScripts:     true,
			FundAccounts:       true,
			AllowHTTP:          true,
		}
	case Testing:
		return Policy{
			Environment:        name,
			DeployNew:          true,
			RedeployOnMismatch: true,
			RunInitScripts:     true,
			FundAccounts:       true,
		}
	default:
		return Policy{
			Environment: name,
			ExplicitIDs: true,
		}
	}
}
