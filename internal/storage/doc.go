// Package storage persists the offer lifecycle: which identity keys are
// active, when they were first and last seen.
//
// Every backend reconciles a snapshot atomically. If any write fails, no
// activation or deactivation from that snapshot is visible afterwards.
//
// Drivers:
//   - "memory": process-local map, lost on restart
//   - "file": JSON state file replaced by atomic rename
//   - "sqlite": embedded SQLite (modernc.org/sqlite, no cgo)
//   - "postgres": PostgreSQL through pgx
package storage
