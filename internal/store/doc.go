// Package store provides SQLite-backed durable storage for graph
// snapshots and the rewrite journal.
//
// The store holds:
//   - Graphs: content-addressed snapshots, keyed by CID
//   - Rules: compiled DPO rules, keyed by rule id
//   - Runs: strategy executions with their outcome
//   - Applications: the ordered change log of every committed rewrite
//
// Content addressing makes graph writes idempotent: the same snapshot
// stored twice is one row. The journal is keyed by (run, seq) so a
// crashed run can be resumed or replayed without duplicate entries, and
// all ordering uses integer sequence numbers, never timestamps, so a
// replay is deterministic regardless of wall time.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
