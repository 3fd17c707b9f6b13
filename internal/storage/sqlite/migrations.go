package sqlite

import (
	"database/sql"
	"fmt"

	"switchyard/pkg/logging"
)

const subsystem = "SQLiteStore"

// Migration is one schema step applied inside a transaction.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// The registrations table mirrors ServiceRegistration and HealthRecord
// column by column; tags and config stay JSON since they are open-ended.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Registrations with health",
		Up: func(tx *sql.Tx) error {
			query := `
			CREATE TABLE IF NOT EXISTS registrations (
				name TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				location TEXT NOT NULL,
				protocol TEXT NOT NULL,
				required INTEGER NOT NULL DEFAULT 0,
				priority TEXT NOT NULL,
				tags_json TEXT NOT NULL DEFAULT '[]',
				config_json TEXT NOT NULL DEFAULT '{}',
				source TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL DEFAULT '',
				updated_at TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				consecutive_failures INTEGER NOT NULL DEFAULT 0,
				last_checked_at TEXT NOT NULL DEFAULT '',
				last_response_ms REAL NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT ''
			);
			`
			if _, err := tx.Exec(query); err != nil {
				return err
			}
			_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_registrations_status ON registrations(status)")
			return err
		},
	},
}

// Migrate applies all pending migrations to the database.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_versions table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		logging.Info(subsystem, "Applying migration %d: %s", m.Version, m.Description)
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		currentVersion = m.Version
	}

	logging.Debug(subsystem, "Schema at version %d", currentVersion)
	return nil
}

func applyMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := m.Up(tx); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_versions (version) VALUES (?)", m.Version); err != nil {
		return err
	}
	return tx.Commit()
}
