// Package store provides SQLite-backed archival of provenance logs.
//
// The archive is append-only:
//   - runs: one row per frozen provenance log, holding its canonical JSON
//     document and reproducibility digest
//   - events: one row per decision or task event, for querying across runs
//
// # Critical Patterns
//
// Logical ordering
//   - Events are ordered by seq INTEGER (logical clock), NEVER timestamps
//   - All event queries use ORDER BY run_id, seq
//
// Idempotent writes
//   - Writing the same run twice is a no-op (ON CONFLICT DO NOTHING)
//
// Canonical payloads
//   - Documents and payloads are RFC 8785 canonical JSON produced by
//     internal/ir, so stored bytes are stable across writers
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// OpenDB applies the same configuration to other SQLite files geosafe
// writes, such as feature stores.
package store
