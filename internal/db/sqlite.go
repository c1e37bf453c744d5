// Package db wraps the embedded SQLite database shared by the admin
// settings store and (via the underlying *sql.DB handed to
// internal/job) the job registry.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Database owns the WAL-mode SQLite connection and the admin settings
// table. Grounded on the teacher's db.Database (NewSQLite's WAL
// pragma/busy-timeout, GetSetting/SetSetting), trimmed of the
// multi-user/watch-history/preset tables that had no home in this
// system's job-orchestration core.
type Database struct {
	db *sql.DB
}

// NewSQLite opens path in WAL mode and runs migrations.
func NewSQLite(path string) (*Database, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	d := &Database{db: sqlDB}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) migrate() error {
	_, err := d.db.Exec(`
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

// GetSetting returns a setting value by key, or defaultVal if not found.
// Used by the admin surface for runtime-adjustable knobs (e.g. a
// temporary override of the idle-unload window) that should survive a
// restart without requiring an environment variable change.
func (d *Database) GetSetting(key, defaultVal string) string {
	var val string
	err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if err != nil {
		return defaultVal
	}
	return val
}

// SetSetting upserts a setting.
func (d *Database) SetSetting(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP`,
		key, value, value,
	)
	return err
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying *sql.DB so internal/job can open its own
// Store against the same connection/file without this package knowing
// about jobs.
func (d *Database) DB() *sql.DB {
	return d.db
}
