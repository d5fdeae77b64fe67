package main

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/shell/bindings"
	"github.com/artpar/trellis/internal/shell/cargo"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log      LogConfig                      `mapstructure:"log"`
	Store    StoreConfig                    `mapstructure:"store"`
	Compiler CompilerConfig                 `mapstructure:"compiler"`
	Bindings BindingsConfig                 `mapstructure:"bindings"`
	RPC      RPCConfig                      `mapstructure:"rpc"`
	Watch    WatchConfig                    `mapstructure:"watch"`
	Keys     KeysConfig                     `mapstructure:"keys"`
	Networks map[string]environment.Network `mapstructure:"networks"`
	Metadata MetadataConfig                 `mapstructure:"metadata"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig holds the state database location. A relative path is
// anchored at the workspace root, so every directory of a workspace shares
// one store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// memoryStore is the sqlite path of a database that lives only in memory.
const memoryStore = ":memory:"

// NeedsWorkspace reports whether the path depends on the workspace root.
func (c StoreConfig) NeedsWorkspace() bool {
	return c.Path != memoryStore && !filepath.IsAbs(c.Path)
}

// Resolve returns the store location for the workspace at root.
func (c StoreConfig) Resolve(root string) string {
	if !c.NeedsWorkspace() {
		return c.Path
	}
	return filepath.Join(root, c.Path)
}

// CompilerConfig names the package manager driving compilation.
type CompilerConfig struct {
	Program string `mapstructure:"program"`
}

// BindingsConfig holds the client binding generator invocation.
type BindingsConfig struct {
	Command []string `mapstructure:"command"`
}

// RPCConfig holds network client settings.
type RPCConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// WatchConfig holds dev loop settings.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
}

// KeysConfig holds the secret that seals account seeds.
// Set via TRELLIS_KEYS_SECRET or the workspace .env file.
type KeysConfig struct {
	Secret string `mapstructure:"secret"`
}

// MetadataConfig lists the package metadata namespaces holding contract flags.
type MetadataConfig struct {
	Namespaces []string `mapstructure:"namespaces"`
}

// NetworkRegistry returns the built-in networks overlaid with configured ones.
func (c *Config) NetworkRegistry() map[string]environment.Network {
	registry := environment.DefaultNetworks()
	maps.Copy(registry, c.Networks)
	return registry
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment. A .env file in
// the working directory is applied to the process environment first.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.path", ".trellis/state.db")
	v.SetDefault("compiler.program", "cargo")
	v.SetDefault("bindings.command", bindings.DefaultCommand)
	v.SetDefault("rpc.timeout", "30s")
	v.SetDefault("watch.debounce", "1s")
	v.SetDefault("watch.ignore", []string{})
	v.SetDefault("keys.secret", "")
	v.SetDefault("metadata.namespaces", cargo.DefaultNamespaces)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a file that exists but does not parse is fatal
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("TRELLIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs go
// to w so that stdout stays free for listings.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
