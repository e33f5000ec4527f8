// Package migrations holds the SQL schema applied by database.Migrator.
package migrations

import "embed"

// FS contains every *.sql migration, applied in filename order.
//
//go:embed *.sql
var FS embed.FS
