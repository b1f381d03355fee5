// Package database provides the SQLite handle used by LoxHome Core.
//
// The database holds the local storage tier (package localstore): the
// dashboard config cache that keeps the dashboard usable while the backend
// is unreachable.
//
// Migrations are plain SQL files applied in version order and recorded in
// schema_migrations. The migration source is passed explicitly, normally
// the embedded migrations.FS:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// The connection pool is limited to one connection (SQLite has a single
// writer). WAL mode lets readers proceed during writes. The database file
// is created with 0600 permissions.
package database
