// Package database provides the bridge's SQLite connection.
//
// This package manages:
//   - Connection with optional WAL mode for concurrent reads
//   - Versioned schema migrations read from an fs.FS
//   - Single-writer connection pooling
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Files are named YYYYMMDD_HHMMSS_description.up.sql with a matching
// .down.sql. Migrations are additive: new columns must be NULLABLE or have
// DEFAULT values.
package database
