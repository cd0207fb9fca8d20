package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

func initSchema(db *sql.DB) error {
	// Check schema version
	var version int
	err := db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if version == schemaVersion {
		return nil
	}

	// Create or update schema
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := createTables(tx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	// Update schema version
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return tx.Commit()
}

func createTables(tx *sql.Tx) error {
	queries := []string{
		// the store is a cache, an older layout is simply rebuilt
		`DROP TABLE IF EXISTS links`,
		`DROP TABLE IF EXISTS files`,

		// Every indexed template
		// - path: absolute file path
		// - last_modified: modification time seen when the links were stored
		`CREATE TABLE files (
            path TEXT PRIMARY KEY,
            last_modified INTEGER NOT NULL
        )`,

		// One row per reference, in document order
		// target_path is empty for an unresolved reference
		// Rows go away with their source file (CASCADE)
		`CREATE TABLE links (
            source_path TEXT NOT NULL,
            target_path TEXT NOT NULL DEFAULT '',
            raw TEXT NOT NULL,
            kind TEXT NOT NULL,
            path_start INTEGER NOT NULL,
            path_end INTEGER NOT NULL,
            FOREIGN KEY (source_path) REFERENCES files(path) ON DELETE CASCADE
        )`,

		// Index to efficiently find backlinks
		`CREATE INDEX idx_links_target
            ON links(target_path)`,

		`CREATE INDEX idx_links_source
            ON links(source_path)`,
	}

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}

	return nil
}
