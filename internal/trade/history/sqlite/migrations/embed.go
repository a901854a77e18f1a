package migrations

import "embed"

// FS contains embedded SQLite migrations for trade history storage.
//
//go:embed *.sql
var FS embed.FS
