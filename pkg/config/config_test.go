package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.True(t, cfg.Distribution.AutoTierEnabled)
	require.Equal(t, 30*time.Minute, cfg.Distribution.CRSCacheTTL)
	require.Equal(t, 6*time.Minute, cfg.Distribution.FraudSweepWindow)
	require.Equal(t, 30, cfg.Distribution.RetentionDays)
	require.Equal(t, "*/5 * * * *", cfg.Schedule.FraudSweep)
	require.Equal(t, "postgres", cfg.Database.Type)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DISTRIBUTION_AUTO_TIER_ENABLED", "false")
	t.Setenv("DISTRIBUTION_LOCK_TIMEOUT", "2s")
	t.Setenv("DISTRIBUTION_RETENTION_DAYS", "90")
	t.Setenv("DATABASE_TYPE", "sqlite")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.False(t, cfg.Distribution.AutoTierEnabled)
	require.Equal(t, 2*time.Second, cfg.Distribution.LockTimeout)
	require.Equal(t, 90, cfg.Distribution.RetentionDays)
	require.Equal(t, "sqlite", cfg.Database.Type)
}
