// Package manifest provides SQLite-backed bookkeeping for ingested
// documents. The manifest records which files have been embedded and
// with what checksum, so the incremental sync and the watcher can skip
// unchanged files and drop rows for files removed from disk.
package manifest

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	chunks     INTEGER NOT NULL DEFAULT 0,
	points     INTEGER NOT NULL DEFAULT 0,
	indexed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// FileRow represents a row in the files table.
type FileRow struct {
	Path      string
	Checksum  string
	Chunks    int
	Points    int
	IndexedAt time.Time
}

// DB wraps a sql.DB with manifest-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite manifest and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// UpsertFile inserts or replaces the row for a file.
func (db *DB) UpsertFile(row FileRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO files (path, checksum, chunks, points, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			chunks     = excluded.chunks,
			points     = excluded.points,
			indexed_at = excluded.indexed_at
	`, row.Path, row.Checksum, row.Chunks, row.Points, row.IndexedAt)
	if err != nil {
		return fmt.Errorf("manifest: upsert file: %w", err)
	}
	return nil
}

// DeleteFile removes the row for a file. Deleting an absent row is a no-op.
func (db *DB) DeleteFile(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("manifest: delete file: %w", err)
	}
	return nil
}

// Get returns the row for a path, or nil when the path is not recorded.
func (db *DB) Get(path string) (*FileRow, error) {
	var row FileRow
	err := db.conn.QueryRow(
		`SELECT path, checksum, chunks, points, indexed_at FROM files WHERE path = ?`, path,
	).Scan(&row.Path, &row.Checksum, &row.Chunks, &row.Points, &row.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: get file: %w", err)
	}
	return &row, nil
}

// AllChecksums returns a path → checksum map for every recorded file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("manifest: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, cs string
		if err := rows.Scan(&path, &cs); err != nil {
			return nil, err
		}
		out[path] = cs
	}
	return out, rows.Err()
}

// Stats returns the number of recorded files and the total point count.
func (db *DB) Stats() (files, points int, err error) {
	err = db.conn.QueryRow(`SELECT COUNT(*), COALESCE(SUM(points), 0) FROM files`).Scan(&files, &points)
	if err != nil {
		return 0, 0, fmt.Errorf("manifest: stats: %w", err)
	}
	return files, points, nil
}
