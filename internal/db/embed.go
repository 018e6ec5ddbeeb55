package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// migrationsFS embeds the SQL migration files so a deployed binary can
// manage its own schema without shipping loose files alongside it.
//
//go:embed migrations
var migrationsFS embed.FS

// DevMode switches getMigrationsFS to read migrations from the local
// source tree instead of the embedded copy. Useful when iterating on a
// new migration without rebuilding.
var DevMode = os.Getenv("POSE_REPORT_DEV_MIGRATIONS") != ""

// getMigrationsFS returns the filesystem containing the migration files,
// rooted so that *.up.sql files sit at the top level.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		const devPath = "internal/db/migrations"
		if _, err := os.Stat(devPath); err != nil {
			return nil, fmt.Errorf("dev mode migrations not found at %s: %w", devPath, err)
		}
		return os.DirFS(devPath), nil
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}
