// Package config loads service configuration from an optional YAML file
// and DEEPLEARN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/deeplearn/internal/llm"
	"github.com/abhisek/deeplearn/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. DEEPLEARN_SERVER_ADDR.
const EnvPrefix = "DEEPLEARN"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       logging.Config  `mapstructure:"log"`
	LLM       llm.Config      `mapstructure:"llm"`

	// CatalogPath overrides the embedded catalog with a YAML file.
	CatalogPath string `mapstructure:"catalog_path"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, memory

	// Path is the SQLite file. Empty means the XDG data dir default.
	Path string `mapstructure:"path"`

	MaxAttempts int `mapstructure:"max_attempts"`
}

// AuthConfig configures bearer token signing.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// LedgerConfig tunes the progress ledger.
type LedgerConfig struct {
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
}

// RateLimitConfig limits LLM-backed requests per user.
type RateLimitConfig struct {
	PerMinute float64 `mapstructure:"per_minute"`
	Burst     int     `mapstructure:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:      "sqlite",
			MaxAttempts: 5,
		},
		Auth: AuthConfig{
			Issuer:   "deeplearn",
			TokenTTL: 24 * time.Hour,
		},
		Ledger: LedgerConfig{
			RefreshTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 10,
			Burst:     5,
		},
		Log: logging.DefaultConfig(),
		LLM: llm.DefaultConfig(),
	}
}

// Load reads configuration. When file is empty, deeplearn.yaml is looked up
// in the working directory and $XDG_CONFIG_HOME/deeplearn; a missing file is
// not an error. Environment variables override file values.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("deeplearn")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Fall back to the standard provider key variables when the selected
	// provider has no key of its own.
	if !cfg.LLM.HasKey() {
		if found, ok := llm.DiscoverConfig(); ok {
			found.Retry = cfg.LLM.Retry
			found.Breaker = cfg.LLM.Breaker
			found.Timeout = cfg.LLM.Timeout
			cfg.LLM = found
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that do not depend on which command runs.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.MaxAttempts < 1 {
		return fmt.Errorf("store max_attempts must be at least 1, got %d", c.Store.MaxAttempts)
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	if c.Server.Mode == "release" && c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth secret is too short (%d chars), must be at least 32 characters in release mode", len(c.Auth.Secret))
	}
	return nil
}

// setDefaults registers every leaf of cfg so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"server.addr":             cfg.Server.Addr,
		"server.mode":             cfg.Server.Mode,
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.write_timeout":    cfg.Server.WriteTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,

		"store.driver":       cfg.Store.Driver,
		"store.path":         cfg.Store.Path,
		"store.max_attempts": cfg.Store.MaxAttempts,

		"auth.secret":    cfg.Auth.Secret,
		"auth.issuer":    cfg.Auth.Issuer,
		"auth.token_ttl": cfg.Auth.TokenTTL,

		"ledger.refresh_timeout": cfg.Ledger.RefreshTimeout,

		"rate_limit.per_minute": cfg.RateLimit.PerMinute,
		"rate_limit.burst":      cfg.RateLimit.Burst,

		"log.level":        cfg.Log.Level,
		"log.file":         cfg.Log.File,
		"log.max_size_mb":  cfg.Log.MaxSizeMB,
		"log.max_backups":  cfg.Log.MaxBackups,
		"log.max_age_days": cfg.Log.MaxAgeDays,
		"log.compress":     cfg.Log.Compress,

		"llm.provider":                     cfg.LLM.Provider,
		"llm.timeout":                      cfg.LLM.Timeout,
		"llm.anthropic.api_key":            cfg.LLM.Anthropic.APIKey,
		"llm.anthropic.model":              cfg.LLM.Anthropic.Model,
		"llm.openai.api_key":               cfg.LLM.OpenAI.APIKey,
		"llm.openai.model":                 cfg.LLM.OpenAI.Model,
		"llm.openai.base_url":              cfg.LLM.OpenAI.BaseURL,
		"llm.gemini.api_key":               cfg.LLM.Gemini.APIKey,
		"llm.gemini.model":                 cfg.LLM.Gemini.Model,
		"llm.openrouter.api_key":           cfg.LLM.OpenRouter.APIKey,
		"llm.openrouter.model":             cfg.LLM.OpenRouter.Model,
		"llm.openrouter.base_url":          cfg.LLM.OpenRouter.BaseURL,
		"llm.retry.max_attempts":           cfg.LLM.Retry.MaxAttempts,
		"llm.retry.initial_wait":           cfg.LLM.Retry.InitialWait,
		"llm.retry.max_wait":               cfg.LLM.Retry.MaxWait,
		"llm.retry.multiplier":             cfg.LLM.Retry.Multiplier,
		"llm.breaker.consecutive_failures": cfg.LLM.Breaker.ConsecutiveFailures,
		"llm.breaker.open_timeout":         cfg.LLM.Breaker.OpenTimeout,
		"llm.breaker.half_open_requests":   cfg.LLM.Breaker.HalfOpenRequests,

		"catalog_path": cfg.CatalogPath,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func configDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "deeplearn"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "deeplearn"), nil
}
