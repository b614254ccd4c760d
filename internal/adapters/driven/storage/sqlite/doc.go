// Package sqlite provides the SQLite-backed implementation of the driven
// storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. A single database file holds:
//
//   - Ledger: processed file records keyed by fingerprint and account
//   - CursorStore: per-account delta cursors
//   - VocabularyStore: learned and seeded tags per scope
//   - SchedulerStore: background task state and history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Applied versions are recorded in schema_migrations.
//
// # Durability
//
// The database runs in WAL mode with synchronous=FULL, so a completed ledger
// write survives a crash.
package sqlite
