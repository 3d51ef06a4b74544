package migrations

import "embed"

// FS contains the embedded settlement schema migrations.
//
//go:embed *.sql
var FS embed.FS
