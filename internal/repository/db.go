package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// the transactions table exists. Foreign key enforcement backs the
// parent/child delete guard, so the pragmas ride the DSN: database/sql
// pools connections, and a plain PRAGMA exec would only reach one of them.
func InitDB(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			idempotency_key TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			merchant_id TEXT NOT NULL,
			order_reference TEXT NOT NULL,
			country_code TEXT NOT NULL,
			parent_id TEXT REFERENCES transactions(id),
			metadata TEXT,
			error_code TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			status_updated_at TEXT NOT NULL,
			processed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_parent ON transactions(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
