// Package database provides SQLite connectivity for the fleet registry.
//
// This package manages:
//   - Connection setup with WAL mode, busy timeout and enforced foreign keys
//   - Embedded schema migrations (see the migrations package)
//   - Transaction and constraint-error helpers shared by the repositories
//
// The pool is capped at a single connection. SQLite serialises writers
// anyway, and handlers that read-modify-write a row must not interleave
// with a sweeper doing the same.
//
// Timestamps are stored as RFC 3339 TEXT in UTC via FormatTime/ParseTime.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
