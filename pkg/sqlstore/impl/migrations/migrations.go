// Package migrations holds the schema migrations applied on startup.
package migrations

import "embed"

// FS embeds the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
