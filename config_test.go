package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ProviderToolkit, cfg.Provider)
	assert.Equal(t, 3*time.Second, cfg.BootstrapTimeout)
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, 30*time.Second, cfg.ClipboardTimeout)
	assert.Equal(t, "octave.log", cfg.LogFile)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PROVIDER", "Memory")
	t.Setenv("BOOTSTRAP_TIMEOUT_SECONDS", "5")
	t.Setenv("SESSION_PATH", "/tmp/octave-session.json")
	t.Setenv("RECOVERY_URL", "https://example.com/recover")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderMemory, cfg.Provider)
	assert.Equal(t, 5*time.Second, cfg.BootstrapTimeout)
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, "/tmp/octave-session.json", cfg.SessionPath)
	assert.Equal(t, "https://example.com/recover", cfg.RecoveryURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogDevelopment)
}

func TestLoadRequiresAPIKeyForToolkit(t *testing.T) {
	t.Setenv("PROVIDER", "toolkit")
	t.Setenv("FIREBASE_API_KEY", "")
	t.Setenv("SESSION_PATH", "/tmp/octave-session.json")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIREBASE_API_KEY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory needs nothing", func(c *Config) { c.Provider = ProviderMemory }, false},
		{"toolkit with key", func(c *Config) { c.FirebaseAPIKey = "key" }, false},
		{"toolkit without key", func(c *Config) {}, true},
		{"unknown provider", func(c *Config) { c.Provider = "ldap" }, true},
		{"zero timeout", func(c *Config) {
			c.Provider = ProviderMemory
			c.SubmitTimeout = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseMemoryAccounts(t *testing.T) {
	accounts, err := ParseMemoryAccounts(" ada@example.com:password1:Ada Lovelace, bob@example.com:hunter22 ,")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, MemoryAccount{Email: "ada@example.com", Password: "password1", Name: "Ada Lovelace"}, accounts[0])
	assert.Equal(t, MemoryAccount{Email: "bob@example.com", Password: "hunter22"}, accounts[1])

	_, err = ParseMemoryAccounts("nopassword")
	assert.Error(t, err)

	accounts, err = ParseMemoryAccounts("")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
