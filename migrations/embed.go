// Package migrations holds the SQL schema of the document service.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
