// Package migrations embeds the fleet registry schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
