package cli

import (
	"fmt"
	"time"

	"github.com/undolab/saferun/internal/audit"
	"github.com/undolab/saferun/internal/config"
	"github.com/undolab/saferun/internal/content"
	"github.com/undolab/saferun/internal/engine"
	"github.com/undolab/saferun/internal/gate"
	"github.com/undolab/saferun/internal/policy"
	"github.com/undolab/saferun/internal/rollback"
	"github.com/undolab/saferun/internal/sandbox"
	"github.com/undolab/saferun/internal/snapshot"
	"github.com/undolab/saferun/internal/store"
	"github.com/undolab/saferun/internal/track"
)

// app is the wired-up engine a command runs against. The content
// store is in-memory: the CLI is a demonstration and testing surface,
// so effects live for the process while operations and snapshots
// persist in SQLite.
type app struct {
	cfg       config.Config
	pol       *policy.Policy
	store     *store.Store
	content   content.Store
	tracker   *track.Tracker
	snapshots *snapshot.Manager
	engine    *engine.Engine
	rollback  *rollback.Engine
}

// openApp resolves configuration (flags over environment over
// defaults), compiles the policy, opens the store, and wires the
// engine. Callers must Close.
func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid environment", err)
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}
	if opts.Policy != "" {
		cfg.PolicyPath = opts.Policy
	}

	pol, err := loadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid policy", err)
	}
	if cfg.CodeTimeoutSeconds > 0 {
		pol.CodeTimeoutSeconds = cfg.CodeTimeoutSeconds
	}
	if cfg.SnapshotRetentionDays > 0 {
		pol.SnapshotRetentionDays = cfg.SnapshotRetentionDays
	}
	if cfg.SnapshotMaxSizeMB > 0 {
		pol.SnapshotMaxSizeMB = cfg.SnapshotMaxSizeMB
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	auditor := audit.NewHandler(nil)
	cs := content.NewMemStore()
	tracker := track.New(st)
	snapshots := snapshot.New(st, snapshot.Retention{
		MaxAge:        time.Duration(pol.SnapshotRetentionDays) * 24 * time.Hour,
		MaxTotalBytes: int64(pol.SnapshotMaxSizeMB) * 1024 * 1024,
		PurgeGrace:    2 * time.Duration(pol.SnapshotRetentionDays) * 24 * time.Hour,
	}, auditor)
	runner := sandbox.New(pol.ForbiddenSymbols,
		time.Duration(pol.CodeTimeoutSeconds)*time.Second, cs, auditor)

	return &app{
		cfg:       cfg,
		pol:       pol,
		store:     st,
		content:   cs,
		tracker:   tracker,
		snapshots: snapshots,
		engine:    engine.New(gate.New(pol), tracker, snapshots, runner, cs, auditor),
		rollback:  rollback.New(snapshots, cs, tracker, auditor),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	p, err := policy.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", path, err)
	}
	return p, nil
}
