// Package migrations embeds the wishlist service schema.
package migrations

import "embed"

// FS holds the *.sql migration files applied at startup.
//
//go:embed *.sql
var FS embed.FS
