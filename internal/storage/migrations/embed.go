// Package migrations applies the embedded schema files for both persistence
// backends on startup. Every migration is idempotent, so reruns are safe.
package migrations

import "embed"

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS
