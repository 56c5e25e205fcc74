// Package schema embeds the SQL used to create the sqlite tables.
package schema

import "embed"

// FS contains the schema templates embedded at compile time.
//
//go:embed *.sql.tmpl
var FS embed.FS
