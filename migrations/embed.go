// Package migrations embeds the SQL schema for the document datastore.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
