// Package migrations embeds the hub's SQL schema into the binary so
// `lighthouse migrate` and `lighthouse serve` work without the files on disk.
package migrations

import (
	"embed"

	"github.com/houseflow/lighthouse/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Migrations = migrationsFS
	database.MigrationsDir = "."
}
