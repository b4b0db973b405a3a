// Package store persists scan results in SQLite.
//
// Three tables hold the data:
//   - firmware: one row per scanned image, unique by fingerprint
//   - services: the status of every registered service of a firmware
//   - transactions: one row per recovered request code of a service
//
// A scan clears the firmware's services and transactions before writing,
// so a rescan replaces rather than appends. Rows of a non-baseline
// firmware carry in_baseline flags computed against the baseline of the
// same release; baseline rows leave them NULL.
//
// # Deterministic Reads
//
// Every read orders by its natural key and then id ASC, so reports are
// stable across runs and SQLite versions.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Handler chains are stored as RFC 8785 canonical JSON produced by
// internal/ir.
package store
