package lazarus

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsDir is the path of the migrations inside GetMigrationsFS. Each
// dialect keeps its own set under postgres/ and sqlite/.
const MigrationsDir = "data/sql/migrations"

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
