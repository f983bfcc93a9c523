// Package database provides SQLite connectivity for SensorCloud Core.
//
// It wraps database/sql with lifecycle management (WAL mode, busy timeout,
// single-writer connection pool), health checks, and an embedded SQL
// migration runner.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded into the binary by the migrations package; see
// migrations/embed.go.
package database
