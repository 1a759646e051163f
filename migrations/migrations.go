// Package migrations embeds the SQL schema applied by the seed command.
package migrations

import "embed"

// Files holds every migration, applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
