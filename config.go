package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"octave/identity"
)

const (
	ProviderToolkit = "toolkit"
	ProviderMemory  = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Provider string `mapstructure:"PROVIDER"`

	// Firebase
	FirebaseAPIKey    string `mapstructure:"FIREBASE_API_KEY"`
	FirebaseProjectID string `mapstructure:"FIREBASE_PROJECT_ID"`

	// Google sign-in
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`

	// Session persistence
	SessionPath       string `mapstructure:"SESSION_PATH"`
	SessionPassphrase string `mapstructure:"SESSION_PASSPHRASE"`

	// Timeouts, read as seconds
	BootstrapTimeout time.Duration `mapstructure:"-"`
	SubmitTimeout    time.Duration `mapstructure:"-"`
	ClipboardTimeout time.Duration `mapstructure:"-"`

	RecoveryURL    string `mapstructure:"RECOVERY_URL"`
	MemoryAccounts string `mapstructure:"MEMORY_ACCOUNTS"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogFile   string `mapstructure:"LOG_FILE"`
	// LogDevelopment selects zap's development logger.
	LogDevelopment bool `mapstructure:"LOG_DEVELOPMENT"`
}

// DefaultConfig returns the built-in defaults without reading the environment.
func DefaultConfig() *Config {
	return &Config{
		Provider:         ProviderToolkit,
		BootstrapTimeout: 3 * time.Second,
		SubmitTimeout:    30 * time.Second,
		ClipboardTimeout: 30 * time.Second,
		LogLevel:         "info",
		LogFormat:        "console",
		LogFile:          "octave.log",
	}
}

// Load reads a .env file (if present) and environment variables on top of
// the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	defaults := DefaultConfig()
	v := viper.New()

	v.SetDefault("PROVIDER", defaults.Provider)
	v.SetDefault("FIREBASE_API_KEY", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "") // Optional
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("SESSION_PATH", "")
	v.SetDefault("SESSION_PASSPHRASE", "")
	v.SetDefault("BOOTSTRAP_TIMEOUT_SECONDS", int(defaults.BootstrapTimeout/time.Second))
	v.SetDefault("SUBMIT_TIMEOUT_SECONDS", int(defaults.SubmitTimeout/time.Second))
	v.SetDefault("CLIPBOARD_TIMEOUT_SECONDS", int(defaults.ClipboardTimeout/time.Second))
	v.SetDefault("RECOVERY_URL", "")
	v.SetDefault("MEMORY_ACCOUNTS", "")
	v.SetDefault("LOG_LEVEL", defaults.LogLevel)
	v.SetDefault("LOG_FORMAT", defaults.LogFormat)
	v.SetDefault("LOG_FILE", defaults.LogFile)
	v.SetDefault("LOG_DEVELOPMENT", false)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Convert duration fields
	cfg.BootstrapTimeout = time.Duration(v.GetInt("BOOTSTRAP_TIMEOUT_SECONDS")) * time.Second
	cfg.SubmitTimeout = time.Duration(v.GetInt("SUBMIT_TIMEOUT_SECONDS")) * time.Second
	cfg.ClipboardTimeout = time.Duration(v.GetInt("CLIPBOARD_TIMEOUT_SECONDS")) * time.Second

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.SessionPath == "" {
		path, err := identity.DefaultSessionPath()
		if err != nil {
			return nil, fmt.Errorf("error resolving session path: %w", err)
		}
		cfg.SessionPath = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the chosen provider depends on.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderToolkit:
		if strings.TrimSpace(c.FirebaseAPIKey) == "" {
			return fmt.Errorf("FIREBASE_API_KEY is not set. It is required by the %q provider", ProviderToolkit)
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("unknown PROVIDER %q (want %q or %q)", c.Provider, ProviderToolkit, ProviderMemory)
	}
	if c.BootstrapTimeout <= 0 || c.SubmitTimeout <= 0 || c.ClipboardTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// MemoryAccount is one entry of MEMORY_ACCOUNTS.
type MemoryAccount struct {
	Email, Password, Name string
}

// ParseMemoryAccounts splits a comma separated list of
// email:password[:name] entries.
func ParseMemoryAccounts(s string) ([]MemoryAccount, error) {
	var accounts []MemoryAccount
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid MEMORY_ACCOUNTS entry %q", entry)
		}
		account := MemoryAccount{Email: parts[0], Password: parts[1]}
		if len(parts) == 3 {
			account.Name = parts[2]
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}
