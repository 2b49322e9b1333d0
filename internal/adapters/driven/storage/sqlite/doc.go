// Package sqlite provides SQLite-backed implementations of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. A Store wraps one database file and
// exposes:
//
//   - ChatHistoryStore: Conversation turns, kept in the chat history directory
//   - SchedulerStore: Scheduled task state and run history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each NNN_name.up.sql file is applied once and
// recorded in schema_migrations.
//
// # Backups
//
// The database runs in WAL mode. Flush checkpoints the WAL into the main file
// so the directory can be archived, and Reload reopens the file after a restore
// replaced it.
package sqlite
