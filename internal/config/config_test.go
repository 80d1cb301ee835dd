package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_FileDefaultsAndEnv(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: memory
auth:
  jwt_secret: from-file
  admin_ids: ["ops"]
ranking:
  timezone: UTC
`)
	t.Setenv("AUTH_JWT_SECRET", "from-env")
	t.Setenv("RANKING_MAX_LIMIT", "50")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 50, cfg.Ranking.MaxLimit)
	assert.Equal(t, 10, cfg.Ranking.DefaultLimit)
	assert.Equal(t, 5*time.Minute, cfg.Ranking.RefreshInterval)
	assert.Equal(t, 24*time.Hour, cfg.Identity.CacheTTL)
	assert.True(t, cfg.IsAdmin("ops"))
	assert.False(t, cfg.IsAdmin("someone"))

	loc, err := cfg.Ranking.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	rate, err := cfg.Redemption.Rate()
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(rate))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", "database:\n  driver: memory\n"},
		{"unknown driver", "database:\n  driver: mongo\nauth:\n  jwt_secret: x\n"},
		{"bad timezone", "auth:\n  jwt_secret: x\nranking:\n  timezone: Mars/Olympus\n"},
		{"bad rate", "auth:\n  jwt_secret: x\nredemption:\n  default_rate: \"0\"\n"},
		{"bad limits", "auth:\n  jwt_secret: x\nranking:\n  default_limit: 20\n  max_limit: 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Name: "pts", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/pts?sslmode=require", d.DSN())
}
