// Package migrations embeds the goose SQL migrations for the jobs,
// tenants, cloud connections, subscriptions, and audit_log tables.
package migrations

import "embed"

//go:embed migrations/*.sql
var FS embed.FS
