package environment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrMalformedNetwork is returned when a network is neither named nor explicit.
	ErrMalformedNetwork = errors.New("malformed network")

	// ErrUnknownNetwork is returned when a named network is not in the registry.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrNeedAtLeastOneAccount is returned when no account is configured.
	ErrNeedAtLeastOneAccount = errors.New("at least one account is required")

	// ErrOnlyOneDefaultAccount is returned when several accounts are flagged default.
	ErrOnlyOneDefaultAccount = errors.New("only one default account is allowed")

	// ErrNoSettingsForEnv is returned when the environments file lacks the active environment.
	ErrNoSettingsForEnv = errors.New("no settings for environment")

	// ErrUnknownEnvironment is returned for names outside the fixed set.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrInvalidSettings is returned when the environments file cannot be decoded.
	ErrInvalidSettings = errors.New("invalid environment settings")
)

// ConfigError wraps environment configuration failures.
type ConfigError struct {
	Op          string
	Environment string
	Message     string
	Err         error
}

func (e *ConfigError) Error() string {
	if e.Environment != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Environment)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(op, env, message string, err error) *ConfigError {
	return &ConfigError{
		Op:          op,
		Environment: env,
		Message:     message,
		Err:         err,
	}
}
