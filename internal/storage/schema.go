package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createFilesTable(tx); err != nil {
			return err
		}
		if err := createRunTables(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}
		db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations upgrades an existing database to currentSchemaVersion.
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}
	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	if version == 0 {
		// File exists but was never initialized (e.g. interrupted first run).
		return db.initializeSchema()
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	return nil
}

func (db *DB) getSchemaVersion() (int, error) {
	ctx := context.Background()
	var tableName string
	err := db.QueryRow(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

func createFilesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			file_id INTEGER PRIMARY KEY,
			path TEXT NOT NULL UNIQUE
		)
	`)
	return err
}

func createRunTables(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collection_runs (
			run_id TEXT PRIMARY KEY,
			main_file_id INTEGER NOT NULL UNIQUE REFERENCES files(file_id),
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS symbols (
			usr TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)`,
		`CREATE TABLE IF NOT EXISTS locations (
			run_id TEXT NOT NULL REFERENCES collection_runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			usr TEXT NOT NULL REFERENCES symbols(usr),
			file_id INTEGER NOT NULL REFERENCES files(file_id),
			line INTEGER NOT NULL,
			col INTEGER NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_usr ON locations(usr)`,
		`CREATE TABLE IF NOT EXISTS included_files (
			run_id TEXT NOT NULL REFERENCES collection_runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			file_id INTEGER NOT NULL REFERENCES files(file_id),
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_included_files_file ON included_files(file_id)`,
		`CREATE TABLE IF NOT EXISTS used_defines (
			run_id TEXT NOT NULL REFERENCES collection_runs(run_id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			file_id INTEGER NOT NULL,
			UNIQUE (run_id, name, file_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_used_defines_name ON used_defines(name)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
