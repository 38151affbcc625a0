// Package migrations embeds the schema of the credential store, one
// directory per SQL dialect.
package migrations

import "embed"

//go:embed mysql/*.sql sqlite/*.sql
var Files embed.FS
