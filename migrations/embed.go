// Package migrations embeds the schema and seed SQL so the migrate binary
// is self-contained.
package migrations

import "embed"

//go:embed sql/*.sql seeds/*.sql
var FS embed.FS
