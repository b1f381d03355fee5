// Package migrations embeds the LoxHome SQL migration files.
//
// Pass FS to database.DB.Migrate. Files follow the scheme
// YYYYMMDD_HHMMSS_description.{up,down}.sql.
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
