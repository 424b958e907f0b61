// Package migrations embeds the SQL migrations for every supported database driver.
package migrations

import "embed"

// FS содержит каталоги postgres/ и sqlite/ с файлами golang-migrate
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
