// Package migrations embeds the SQL schema migrations
package migrations

import "embed"

// FS holds every NNN_title.up.sql and NNN_title.down.sql file
//
//go:embed *.sql
var FS embed.FS
