package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the version stamped on a store once the multi-site
// layout and the legacy single-site migration are in place
const SchemaVersion = 2

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{db}, nil
}

func runMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sites (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			base_url TEXT NOT NULL,
			api_key TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL,
			temperature REAL NOT NULL DEFAULT 0.7,
			max_tokens INTEGER,
			enabled INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS site_health (
			site_id TEXT PRIMARY KEY,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_failure DATETIME,
			last_success DATETIME,
			FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS expert_presets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			experts TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_histories (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			expert_preset_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			chat_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			expert_id TEXT,
			content TEXT NOT NULL,
			round INTEGER NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY (chat_id, seq),
			FOREIGN KEY (chat_id) REFERENCES chat_histories(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sites_priority ON sites(priority)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_histories_updated ON chat_histories(updated_at)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}
