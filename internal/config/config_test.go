package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "saferun.db", cfg.DatabasePath)
	assert.Empty(t, cfg.PolicyPath)
	assert.Zero(t, cfg.CodeTimeoutSeconds)
	assert.Zero(t, cfg.SnapshotRetentionDays)
	assert.Zero(t, cfg.SnapshotMaxSizeMB)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SAFERUN_DB_PATH", "/tmp/engine.db")
	t.Setenv("SAFERUN_POLICY_PATH", "/etc/saferun/policy.cue")
	t.Setenv("SAFERUN_CODE_TIMEOUT_SECONDS", "10")
	t.Setenv("SAFERUN_SNAPSHOT_RETENTION_DAYS", "30")
	t.Setenv("SAFERUN_SNAPSHOT_MAX_SIZE_MB", "200")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/engine.db", cfg.DatabasePath)
	assert.Equal(t, "/etc/saferun/policy.cue", cfg.PolicyPath)
	assert.Equal(t, 10, cfg.CodeTimeoutSeconds)
	assert.Equal(t, 30, cfg.SnapshotRetentionDays)
	assert.Equal(t, 200, cfg.SnapshotMaxSizeMB)
}

func TestFromEnvDefaultsWithoutOverrides(t *testing.T) {
	// An unprefixed variable must not leak in.
	t.Setenv("DB_PATH", "/should/be/ignored.db")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "saferun.db", cfg.DatabasePath)
}

func TestFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("SAFERUN_CODE_TIMEOUT_SECONDS", "not-a-number")

	_, err := FromEnv()
	require.Error(t, err)
}
