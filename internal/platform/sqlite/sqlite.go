// Package sqlite opens the agent's local database holding the three local
// tables: upload_tasks, permit_usage and transactions.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 2

// migrations[v] upgrades a database at version v-1 to v. A fresh database is
// created at currentSchemaVersion and runs none of them.
var migrations = map[int]string{
	// upload_tasks times move from epoch ms to epoch ns.
	2: `UPDATE upload_tasks SET
		enqueued_at = enqueued_at * 1000000,
		next_attempt_at = next_attempt_at * 1000000,
		updated_at = updated_at * 1000000`,
}

// Open creates or opens a SQLite database at path, applies pragmas and the
// schema. Safe to call on an existing database.
//
// The connection pool is limited to one connection: SQLite allows a single
// writer and ":memory:" databases are per-connection.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	}
	for v := int(version.Int64) + 1; v <= currentSchemaVersion; v++ {
		if err := migrate(db, v); err != nil {
			return err
		}
	}
	return nil
}

func migrate(db *sql.DB, version int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()
	if stmt, ok := migrations[version]; ok {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
	}
	if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return tx.Commit()
}
