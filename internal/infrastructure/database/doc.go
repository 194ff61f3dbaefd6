// Package database provides the hub's SQLite store.
//
// It owns the connection (WAL mode, busy timeout, foreign keys on), the
// schema migrations embedded from the top-level migrations package, and a
// couple of helpers for classifying driver errors.
//
// All queries elsewhere in the hub use parameterised statements, and the
// database file is created with 0600 permissions since it holds password
// hashes and refresh token records.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
