package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/settlement")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 3, cfg.Settlement.ResolveMaxAttempts)
	assert.Equal(t, int64(50_000_000), cfg.Settlement.WalletTopupMax)
	assert.False(t, cfg.Settlement.ManualCompleteEnabled)
	assert.Zero(t, cfg.Worker.ReconcileInterval)
	assert.Equal(t, 5, cfg.Worker.WebhookMaxAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/settlement")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GATEWAY_TIMEOUT", "250ms")
	t.Setenv("MANUAL_COMPLETE_ENABLED", "true")
	t.Setenv("RECONCILE_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Gateway.Timeout)
	assert.True(t, cfg.Settlement.ManualCompleteEnabled)
	assert.Equal(t, 30*time.Second, cfg.Worker.ReconcileInterval)
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_MissingRequired(t *testing.T) {
	unsetEnv(t, "DATABASE_URL")
	unsetEnv(t, "JWT_SECRET")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOperator_NoJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/settlement")
	unsetEnv(t, "JWT_SECRET")

	cfg, err := LoadOperator()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/settlement", cfg.Database.URL)
	assert.Equal(t, 50, cfg.Worker.ReconcileBatch)
}
