// Package storage is herald's best-effort persistence collaborator.
//
// It is never the source of truth for a live decision: the detector and the
// content tracker own their in-memory maps, and every call here may fail
// without affecting correctness. Failures are logged by callers and swallowed.
//
// Drivers:
//   - "memory": process-lifetime only (tests, dry runs)
//   - "file":   dependency-free jsonl journal + snapshot
//   - "sqlite": SQLite database file (modernc.org/sqlite)
package storage
