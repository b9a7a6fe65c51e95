package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Name    string
	SQL     string
	Version int
}

// Migrations is the list of all database migrations in order.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "runs_and_events",
		SQL: `
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				started_at TEXT NOT NULL,
				started_at_epoch INTEGER NOT NULL,
				finished_at TEXT,
				collected INTEGER NOT NULL DEFAULT 0,
				deduplicated INTEGER NOT NULL DEFAULT 0,
				scored INTEGER NOT NULL DEFAULT 0,
				qualified INTEGER NOT NULL DEFAULT 0,
				downgraded INTEGER NOT NULL DEFAULT 0,
				message TEXT,
				status TEXT CHECK(status IN ('completed', 'failed')) NOT NULL DEFAULT 'completed',
				error TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_epoch DESC);

			CREATE TABLE IF NOT EXISTS events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				title TEXT NOT NULL,
				url TEXT,
				source TEXT NOT NULL,
				published_at TEXT,
				similar_sources TEXT NOT NULL DEFAULT '[]',
				FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, position);
		`,
	},
	{
		Version: 2,
		Name:    "event_scores",
		SQL: `
			ALTER TABLE events ADD COLUMN total_score INTEGER;
			ALTER TABLE events ADD COLUMN is_qualified INTEGER;
			ALTER TABLE events ADD COLUMN selected INTEGER NOT NULL DEFAULT 0;
		`,
	},
}

// MigrationManager handles database schema migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// EnsureSchemaVersionsTable creates the schema_versions table if it doesn't exist.
func (m *MigrationManager) EnsureSchemaVersionsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY,
			version INTEGER UNIQUE NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// GetAppliedVersions returns all applied migration versions.
func (m *MigrationManager) GetAppliedVersions() (map[int]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_versions ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

// ApplyMigration applies a single migration inside a transaction.
func (m *MigrationManager) ApplyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("execute migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	_, err = tx.Exec(
		"INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)",
		migration.Version, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RunMigrations applies all pending migrations.
func (m *MigrationManager) RunMigrations() error {
	if err := m.EnsureSchemaVersionsTable(); err != nil {
		return fmt.Errorf("ensure schema_versions table: %w", err)
	}

	applied, err := m.GetAppliedVersions()
	if err != nil {
		return fmt.Errorf("get applied versions: %w", err)
	}

	for _, migration := range Migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.ApplyMigration(migration); err != nil {
			return err
		}
	}

	return nil
}
