// Package migrations embeds the goose SQL migrations for the SQL record
// stores, one directory per dialect.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

// Dialect directories inside Migrations.
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
