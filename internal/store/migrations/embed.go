// Package migrations embeds the SQL migrations of the metadata store.
package migrations

import "embed"

// FS contains the migration files, named NNN_name.up.sql.
//
//go:embed *.sql
var FS embed.FS
