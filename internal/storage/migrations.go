package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.0.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
}

// The search index is a standalone FTS5 table. It is written only by the
// content operations in sqlite.go, never by triggers.
const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per indexed root
CREATE TABLE IF NOT EXISTS index_runs (
    path TEXT PRIMARY KEY,
    total_files INTEGER NOT NULL DEFAULT 0,
    success_count INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    index_size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    status INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_index_runs_updated ON index_runs(updated_at);

-- Every visited file, append-only
CREATE TABLE IF NOT EXISTS scanned_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name TEXT NOT NULL,
    dir_label TEXT NOT NULL
);

-- Successfully extracted files
CREATE TABLE IF NOT EXISTS indexed_files (
    internal_id INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    file_name TEXT NOT NULL,
    content TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    ext TEXT NOT NULL,
    modified_at INTEGER NOT NULL DEFAULT 0,
    md5 TEXT,
    duplicate INTEGER NOT NULL DEFAULT 0,
    content_status INTEGER NOT NULL DEFAULT 0,
    tags TEXT,
    created_at INTEGER NOT NULL,
    status INTEGER NOT NULL DEFAULT 1,
    dir_label TEXT NOT NULL,
    query_frequency INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_indexed_files_id ON indexed_files(id);

-- Extraction failures
CREATE TABLE IF NOT EXISTS index_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dir_label TEXT NOT NULL,
    file_name TEXT NOT NULL,
    message TEXT NOT NULL,
    classification TEXT NOT NULL
);

-- Canonical document text
CREATE TABLE IF NOT EXISTS contents (
    row_key INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    content TEXT NOT NULL,
    file_name TEXT NOT NULL,
    ext TEXT NOT NULL,
    dir_label TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contents_id ON contents(id);

-- Search index, rowid = contents.row_key
CREATE VIRTUAL TABLE IF NOT EXISTS contents_fts USING fts5(
    content, file_name, ext
);

-- Key/value settings
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    value TEXT NOT NULL
);

-- Saved documents
CREATE TABLE IF NOT EXISTS favorites (
    row_key INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    file_name TEXT NOT NULL,
    ext TEXT NOT NULL,
    dir_label TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS favorites;
DROP TABLE IF EXISTS settings;
DROP TABLE IF EXISTS contents_fts;
DROP TABLE IF EXISTS contents;
DROP TABLE IF EXISTS index_errors;
DROP TABLE IF EXISTS indexed_files;
DROP TABLE IF EXISTS scanned_files;
DROP TABLE IF EXISTS index_runs;
DROP TABLE IF EXISTS schema_version;
`

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}

// currentSchemaVersion returns the last applied version, or 0.0.0 on a fresh database
func currentSchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var versionStr string
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&versionStr)
	if err == sql.ErrNoRows || (err == nil && versionStr == "") {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}

	version, err := semver.NewVersion(versionStr)
	if err != nil {
		return nil, fmt.Errorf("invalid current schema version %s: %w", versionStr, err)
	}
	return version, nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	var currentVersion string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == currentVersion {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", currentVersion)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", currentVersion, err)
	}

	// The Down script drops schema_version itself, so the record goes with it
	// unless an earlier version remains.
	var exists string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&exists)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", currentVersion, err)
	}

	return nil
}
