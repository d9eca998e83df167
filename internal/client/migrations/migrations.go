// Package migrations embeds the SQLite schema of the client's device
// database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
