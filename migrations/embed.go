// Package migrations embeds the star schema migration files so the migrator
// can run with zero filesystem configuration in containerized deployments.
package migrations

import "embed"

// FS holds every versioned migration file shipped with the binary.
//
//go:embed *.sql
var FS embed.FS
