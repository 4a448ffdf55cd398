package migrations

import "embed"

// FS contains the embedded record store migrations.
//
//go:embed *.sql
var FS embed.FS
