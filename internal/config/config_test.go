package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("test", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, DevEmailKey, cfg.Crypto.EmailKey)
	assert.Equal(t, "chain", cfg.Audit.Scheme)
	assert.Equal(t, "log", cfg.Mail.Provider)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 7000
database:
  path: /tmp/vault-test.db
audit:
  scheme: action
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.staging.yaml"), yaml, 0o644))

	t.Setenv("SDV_SERVER_PORT", "7100")
	t.Setenv("JWT_SECRET", "a-secret-from-the-environment")

	cfg, err := load("staging", dir)
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Server.Port, "env var wins over file")
	assert.Equal(t, "/tmp/vault-test.db", cfg.Database.Path)
	assert.Equal(t, "action", cfg.Audit.Scheme)
	assert.Equal(t, "a-secret-from-the-environment", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := load("test", t.TempDir())
		require.NoError(t, err)
		cfg.Auth.JWTSecret = "sixteen-chars-ok"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"bad key length", func(c *Config) { c.Crypto.EmailKey = "too-short" }},
		{"unknown scheme", func(c *Config) { c.Audit.Scheme = "merkle" }},
		{"sendgrid without key", func(c *Config) { c.Mail.Provider = "sendgrid" }},
		{"unknown provider", func(c *Config) { c.Mail.Provider = "carrier-pigeon" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
