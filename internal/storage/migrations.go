package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
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
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per passage; id is "<file_hash>::chunk<index>"
CREATE TABLE IF NOT EXISTS passages (
    id TEXT PRIMARY KEY,
    file_path TEXT NOT NULL,
    file_hash TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    document TEXT NOT NULL,
    text TEXT NOT NULL,
    modified_at INTEGER NOT NULL, -- unix nanoseconds
    created_at INTEGER NOT NULL,  -- unix nanoseconds
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_passages_file ON passages(file_path, file_hash);
CREATE INDEX IF NOT EXISTS idx_passages_created ON passages(created_at);
CREATE INDEX IF NOT EXISTS idx_passages_modified ON passages(modified_at);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_passages_modified;
DROP INDEX IF EXISTS idx_passages_created;
DROP INDEX IF EXISTS idx_passages_file;
DROP TABLE IF EXISTS passages;
DROP TABLE IF EXISTS schema_version;
`

// 1.1.0 keys passages on (id, file_path). Byte-identical files share passage
// IDs, and each of them keeps its own rows.
const migrationV11Up = `
CREATE TABLE passages_v11 (
    id TEXT NOT NULL,
    file_path TEXT NOT NULL,
    file_hash TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    document TEXT NOT NULL,
    text TEXT NOT NULL,
    modified_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id, file_path)
);

INSERT INTO passages_v11 SELECT * FROM passages;
DROP TABLE passages;
ALTER TABLE passages_v11 RENAME TO passages;

CREATE INDEX IF NOT EXISTS idx_passages_file ON passages(file_path, file_hash);
CREATE INDEX IF NOT EXISTS idx_passages_created ON passages(created_at);
CREATE INDEX IF NOT EXISTS idx_passages_modified ON passages(modified_at);
`

// Rolling back keeps the first row of every id.
const migrationV11Down = `
CREATE TABLE passages_v10 (
    id TEXT PRIMARY KEY,
    file_path TEXT NOT NULL,
    file_hash TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    document TEXT NOT NULL,
    text TEXT NOT NULL,
    modified_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO passages_v10 SELECT * FROM passages ORDER BY file_path;
DROP TABLE passages;
ALTER TABLE passages_v10 RENAME TO passages;

CREATE INDEX IF NOT EXISTS idx_passages_file ON passages(file_path, file_hash);
CREATE INDEX IF NOT EXISTS idx_passages_created ON passages(created_at);
CREATE INDEX IF NOT EXISTS idx_passages_modified ON passages(modified_at);
`

// ApplyMigrations runs all pending migrations, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		version, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !current.LessThan(version) {
			continue
		}

		if err := runMigration(ctx, db,
			step{query: migration.Up},
			step{query: "INSERT INTO schema_version (version) VALUES (?)", args: []any{migration.Version}},
		); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		current = version
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}

	for i := len(AllMigrations) - 1; i >= 0; i-- {
		migration := AllMigrations[i]
		if !semver.MustParse(migration.Version).Equal(current) {
			continue
		}
		// The down script may drop schema_version itself, so the record is
		// deleted before the script runs.
		if err := runMigration(ctx, db,
			step{query: "DELETE FROM schema_version WHERE version = ?", args: []any{migration.Version}},
			step{query: migration.Down},
		); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
		}
		return nil
	}

	return fmt.Errorf("migration %s not found", current)
}

// SchemaVersion returns the highest applied migration version, or 0.0.0
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	zero := semver.MustParse("0.0.0")

	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if err == sql.ErrNoRows {
		return zero, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// step is one statement of a migration transaction
type step struct {
	query string
	args  []any
}

// runMigration executes steps in a single transaction
func runMigration(ctx context.Context, db *sql.DB, steps ...step) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range steps {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}
