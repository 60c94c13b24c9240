// Package migrations holds the Postgres schema, applied in lexical order.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
