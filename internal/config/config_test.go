package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "worker", cfg.ServiceMode)
	require.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	require.Equal(t, 50, cfg.MaxJobsPerBatch)
	require.Equal(t, 300, cfg.JobTimeoutSeconds)
	require.Equal(t, 60, cfg.BackoffBaseSeconds)
	require.Equal(t, 30, cfg.ZombiePluginTimeoutSeconds)
	require.Equal(t, 5, cfg.WebhookMaxAttempts)
	require.True(t, cfg.RateLimitEnabled)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_MODE", "api")
	t.Setenv("MAX_JOBS_PER_BATCH", "10")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "api", cfg.ServiceMode)
	require.Equal(t, 10, cfg.MaxJobsPerBatch)
	require.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}
