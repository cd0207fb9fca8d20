package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trellis.store")

// SQLiteDB is a Store in a SQLite file.
type SQLiteDB struct {
	db *sql.DB
}

var _ Store = (*SQLiteDB)(nil)

// Open opens or creates the database at path. An empty path or ":memory:"
// keeps everything in memory.
func Open(path string) (*SQLiteDB, error) {
	memory := path == "" || path == ":memory:"
	if memory {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// the pragmas below are per connection, and every connection to
	// :memory: would get its own empty database
	db.SetMaxOpenConns(1)

	// Enable foreign keys and WAL mode
	if _, err := db.Exec(`
        PRAGMA foreign_keys = ON;
        PRAGMA journal_mode = WAL;
    `); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debugf("opened link store %s", path)
	return &SQLiteDB{db: db}, nil
}

func (db *SQLiteDB) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	return nil
}

func (db *SQLiteDB) GetFile(path string) (*FileRecord, error) {
	var record FileRecord
	err := db.db.QueryRow(
		"SELECT path, last_modified FROM files WHERE path = ?",
		path,
	).Scan(&record.Path, &record.LastModified)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}

	return &record, nil
}

func (db *SQLiteDB) AllFiles() ([]FileRecord, error) {
	rows, err := db.db.Query("SELECT path, last_modified FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var record FileRecord
		if err := rows.Scan(&record.Path, &record.LastModified); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file records: %w", err)
	}

	return records, nil
}

// ReplaceFile stores file and swaps its links for links in one transaction.
func (db *SQLiteDB) ReplaceFile(file FileRecord, links []LinkRecord) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
            INSERT INTO files (path, last_modified)
            VALUES (?, ?)
            ON CONFLICT(path) DO UPDATE SET
                last_modified = excluded.last_modified
        `, file.Path, file.LastModified); err != nil {
			return fmt.Errorf("failed to upsert file: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM links WHERE source_path = ?", file.Path); err != nil {
			return fmt.Errorf("failed to delete links: %w", err)
		}

		stmt, err := tx.Prepare(`
            INSERT INTO links (source_path, target_path, raw, kind, path_start, path_end)
            VALUES (?, ?, ?, ?, ?, ?)
        `)
		if err != nil {
			return fmt.Errorf("failed to prepare link insert: %w", err)
		}
		defer stmt.Close()

		for _, l := range links {
			if _, err := stmt.Exec(file.Path, l.Target, l.Raw, l.Kind, l.PathStart, l.PathEnd); err != nil {
				return fmt.Errorf("failed to insert link: %w", err)
			}
		}
		return nil
	})
}

func (db *SQLiteDB) DeleteFile(path string) error {
	result, err := db.db.Exec("DELETE FROM files WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *SQLiteDB) GetLinks(source string) ([]LinkRecord, error) {
	rows, err := db.db.Query(`
        SELECT source_path, target_path, raw, kind, path_start, path_end
        FROM links
        WHERE source_path = ?
        ORDER BY path_start
    `, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	return scanLinkRecords(rows)
}

func (db *SQLiteDB) GetBacklinks(target string) ([]LinkRecord, error) {
	rows, err := db.db.Query(`
        SELECT source_path, target_path, raw, kind, path_start, path_end
        FROM links
        WHERE target_path = ?
        ORDER BY source_path, path_start
    `, target)
	if err != nil {
		return nil, fmt.Errorf("failed to query backlinks: %w", err)
	}
	defer rows.Close()

	return scanLinkRecords(rows)
}

// UnresolvedSources lists every file with at least one unresolved link.
func (db *SQLiteDB) UnresolvedSources() ([]string, error) {
	rows, err := db.db.Query(`
        SELECT DISTINCT source_path
        FROM links
        WHERE target_path = ''
        ORDER BY source_path
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved links: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan source path: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source paths: %w", err)
	}
	return paths, nil
}

func (db *SQLiteDB) Clear() error {
	_, err := db.db.Exec(`
        DELETE FROM links;
        DELETE FROM files;
    `)
	if err != nil {
		return fmt.Errorf("failed to clear database: %w", err)
	}
	return nil
}

func (db *SQLiteDB) Close() error {
	return db.db.Close()
}

func scanLinkRecords(rows *sql.Rows) ([]LinkRecord, error) {
	var records []LinkRecord
	for rows.Next() {
		var record LinkRecord
		if err := rows.Scan(
			&record.Source, &record.Target, &record.Raw,
			&record.Kind, &record.PathStart, &record.PathEnd,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link records: %w", err)
	}

	return records, nil
}
