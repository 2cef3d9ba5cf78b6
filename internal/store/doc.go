// Package store provides SQLite-backed durable storage for operation
// records and snapshots.
//
// Two record families live here:
//   - Operations: one row per tracked execution attempt, plus an
//     append-only step log keyed by (operation_id, seq)
//   - Snapshots: one row per successfully completed operation, holding
//     the serialized delta list and rollback instructions
//
// Write discipline:
//   - Status transitions use guarded UPDATEs (WHERE status = <from>);
//     an illegal transition affects zero rows, so the lifecycle is
//     monotonic at the storage layer, not just in the tracker
//   - Snapshot inserts use ON CONFLICT(operation_id) DO NOTHING: at
//     most one snapshot per operation, idempotent on retry
//   - Deltas and instructions are serialized as RFC 8785 canonical
//     JSON TEXT so rows are byte-stable and fingerprintable
//
// Database configuration:
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
