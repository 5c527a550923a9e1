// Package migrations embeds the schema files for each supported dialect.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql, named NNNN_name.up.sql and
// NNNN_name.down.sql.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
