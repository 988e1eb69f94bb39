package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "s3cret")
	cfg, err := LoadConfig(writeConfig(t, "auth:\n  jwt_secret: ${TEST_JWT_SECRET}\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "./data/coffee.db", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Model.SamplesPerType)
	assert.Equal(t, 100, cfg.Model.Epochs)
	assert.Equal(t, []int{64, 32}, cfg.Model.HiddenLayers)
	assert.Equal(t, 0.2, *cfg.Model.ValidationSplit)
	assert.Equal(t, 0.2, *cfg.Model.Dropout)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.Zero(t, cfg.PollInterval())
	assert.Equal(t, "production", cfg.Log.Mode)
}

func TestLoadConfig_ExplicitZeroes(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
model:
  validation_split: 0
  dropout: 0
refresher:
  poll_interval_seconds: 15
auth:
  jwt_secret: x
`))
	require.NoError(t, err)
	assert.Zero(t, *cfg.Model.ValidationSplit)
	assert.Zero(t, *cfg.Model.Dropout)
	assert.Equal(t, 15*time.Second, cfg.PollInterval())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown database", "database:\n  type: mysql\nauth:\n  jwt_secret: x\n"},
		{"postgres without url", "database:\n  type: postgres\nauth:\n  jwt_secret: x\n"},
		{"missing secret", "server:\n  port: \"1\"\n"},
		{"bad log mode", "log:\n  mode: loud\nauth:\n  jwt_secret: x\n"},
		{"unknown field", "auth:\n  jwt_secret: x\nbogus: 1\n"},
		{"negative poll", "refresher:\n  poll_interval_seconds: -1\nauth:\n  jwt_secret: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
