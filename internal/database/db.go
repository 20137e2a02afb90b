// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB connection and provides access to stores
type DB struct {
	*sql.DB
	Documents *DocumentStore
	path      string
}

// Open opens a database connection and initializes stores. ":memory:"
// opens a private in-memory ledger.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(dbPath) {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if !isMemory(dbPath) {
		// WAL lets the HTTP API read while a batch is writing
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	database := &DB{
		DB:        db,
		Documents: NewDocumentStore(db),
		path:      dbPath,
	}

	// Run migrations
	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		filename TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		order_number TEXT NOT NULL DEFAULT '',
		order_pattern TEXT NOT NULL DEFAULT '',
		tracking_number TEXT NOT NULL DEFAULT '',
		tracking_source TEXT NOT NULL DEFAULT '',
		missing TEXT NOT NULL DEFAULT '[]',
		diagnostics TEXT NOT NULL DEFAULT '{}',
		error_message TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		processed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(path, content_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_processed_at ON documents(processed_at);
	CREATE INDEX IF NOT EXISTS idx_documents_order_number ON documents(order_number);
	CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return db.migrateFulfillmentFields()
}

// migrateFulfillmentFields adds the fulfillment and OCR columns to ledgers
// created before they existed.
func (db *DB) migrateFulfillmentFields() error {
	columns := []struct {
		name string
		ddl  string
	}{
		{"fulfillment_order_id", "ALTER TABLE documents ADD COLUMN fulfillment_order_id INTEGER NOT NULL DEFAULT 0"},
		{"carrier", "ALTER TABLE documents ADD COLUMN carrier TEXT NOT NULL DEFAULT ''"},
		{"pages", "ALTER TABLE documents ADD COLUMN pages INTEGER NOT NULL DEFAULT 0"},
		{"duration_ms", "ALTER TABLE documents ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0"},
	}

	for _, col := range columns {
		var columnExists int
		err := db.QueryRow(`
			SELECT COUNT(*)
			FROM pragma_table_info('documents')
			WHERE name = ?
		`, col.name).Scan(&columnExists)
		if err != nil {
			return fmt.Errorf("failed to check %s column existence: %w", col.name, err)
		}
		if columnExists > 0 {
			continue
		}
		if _, err := db.Exec(col.ddl); err != nil {
			return fmt.Errorf("failed to execute migration query '%s': %w", col.ddl, err)
		}
	}

	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// IsHealthy checks if the database connection is healthy
func (db *DB) IsHealthy() error {
	return db.Ping()
}
