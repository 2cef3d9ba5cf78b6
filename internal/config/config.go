// Package config holds the engine's infrastructure configuration.
// Everything is an explicit struct threaded through constructors;
// nothing reads ambient global state. Environment variables (prefix
// SAFERUN_) override file-provided values.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the infrastructure surface: where the operation/snapshot
// database lives, where the policy file is, and numeric overrides for
// the policy knobs. Zero override values mean "use the policy file's
// value".
type Config struct {
	// DatabasePath is the SQLite file for operations and snapshots.
	DatabasePath string `env:"DB_PATH"`

	// PolicyPath points at a CUE policy file. Empty means the
	// embedded default policy.
	PolicyPath string `env:"POLICY_PATH"`

	// CodeTimeoutSeconds overrides the sandbox wall-clock budget.
	CodeTimeoutSeconds int `env:"CODE_TIMEOUT_SECONDS"`

	// SnapshotRetentionDays overrides the snapshot age bound.
	SnapshotRetentionDays int `env:"SNAPSHOT_RETENTION_DAYS"`

	// SnapshotMaxSizeMB overrides the cumulative stored-size bound.
	SnapshotMaxSizeMB int `env:"SNAPSHOT_MAX_SIZE_MB"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		DatabasePath: "saferun.db",
	}
}

// FromEnv builds a Config from defaults plus SAFERUN_* environment
// variables.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SAFERUN_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
