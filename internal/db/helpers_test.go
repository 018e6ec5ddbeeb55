package db

import (
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// setupTestDB creates a fully migrated database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// setupMigrationTestDB creates a bare database without schema so
// migration behavior can be exercised from version zero.
func setupMigrationTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "migrate-test.db")

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{sqlDB}
}

// setupTestMigrations writes a two-step synthetic migration set to a temp
// directory and returns it as an fs.FS, for tests that need to observe
// intermediate schema versions.
func setupTestMigrations(t *testing.T) fs.FS {
	t.Helper()
	tmpDir := filepath.Join(t.TempDir(), "migrations")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		t.Fatalf("failed to create temp migrations dir: %v", err)
	}

	migrations := map[string]string{
		"000001_create_widgets.up.sql": `
			CREATE TABLE IF NOT EXISTS widgets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
		`,
		"000001_create_widgets.down.sql": `
			DROP TABLE IF EXISTS widgets;
		`,
		"000002_add_widget_notes.up.sql": `
			ALTER TABLE widgets ADD COLUMN notes TEXT;
		`,
		"000002_add_widget_notes.down.sql": `
			CREATE TABLE widgets_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
			INSERT INTO widgets_new (id, name) SELECT id, name FROM widgets;
			DROP TABLE widgets;
			ALTER TABLE widgets_new RENAME TO widgets;
		`,
	}

	for filename, content := range migrations {
		path := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write migration file %s: %v", filename, err)
		}
	}

	return os.DirFS(tmpDir)
}

// tableExists reports whether a table is present in the database.
func tableExists(t *testing.T, database *DB, name string) bool {
	t.Helper()
	var exists bool
	err := database.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return exists
}

// columnExists reports whether a column is present on a table.
func columnExists(t *testing.T, database *DB, table, column string) bool {
	t.Helper()
	var exists bool
	err := database.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name=?
	`, table, column).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check column %s.%s: %v", table, column, err)
	}
	return exists
}
