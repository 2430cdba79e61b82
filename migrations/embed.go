// Package migrations holds the goose-formatted SQL schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
