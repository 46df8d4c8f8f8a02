package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "sqlite",
	createTable: `
		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_identifier TEXT NOT NULL,
			project_id INTEGER,
			messages JSON,
			created TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_identifier, project_id)
		)`,
	count:     `SELECT count(*) FROM history WHERE user_identifier = ? AND project_id IS ?`,
	selectRow: `SELECT messages FROM history WHERE user_identifier = ? AND project_id IS ?`,
	upsert: `
		INSERT INTO history (user_identifier, project_id, messages) VALUES (?, ?, ?)
		ON CONFLICT (user_identifier, project_id) DO UPDATE SET
			messages = excluded.messages,
			updated = CURRENT_TIMESTAMP`,
	selectNull: `SELECT id FROM history WHERE user_identifier = ? AND project_id IS NULL`,
	updateByID: `UPDATE history SET messages = ?, updated = CURRENT_TIMESTAMP WHERE id = ?`,
	insertNull: `INSERT INTO history (user_identifier, project_id, messages) VALUES (?, NULL, ?)`,
	delete:     `DELETE FROM history WHERE user_identifier = ? AND project_id IS ?`,
}

// SQLiteStore keeps history in a SQLite database file.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (or creates) the database at path and bootstraps the
// history table.
func NewSQLiteStore(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a database path")
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, wrap(sqliteDialect.name, opOpen, err)
	}
	s, err := newSQLStore(ctx, db, sqliteDialect, nil, opts.logger())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlStore: s}, nil
}

// OpenSQLite opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

var _ Store = (*SQLiteStore)(nil)
