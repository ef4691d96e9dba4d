// Package migrations embeds the bridge's SQL migration files into the binary.
package migrations

import "embed"

// FS holds the *.up.sql / *.down.sql files, at its root.
//
//go:embed *.sql
var FS embed.FS
