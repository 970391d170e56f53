package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements CredentialStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite credential store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// Load returns the stored credentials.
func (s *SQLiteStore) Load() (Credentials, error) {
	rows, err := s.db.Query(
		"SELECT name, value FROM credentials WHERE name IN (?, ?)",
		KeyUser, KeyToken,
	)
	if err != nil {
		return Credentials{}, fmt.Errorf("sqlite: failed to query credentials: %w", err)
	}
	defer rows.Close()

	creds, err := scanCredentials(rows)
	if err != nil {
		return Credentials{}, fmt.Errorf("sqlite: %w", err)
	}
	return creds, nil
}

// Save replaces both entries in a single transaction.
func (s *SQLiteStore) Save(creds Credentials) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT OR REPLACE INTO credentials (name, value, updated_at)
	VALUES (?, ?, datetime('now'))
	`
	for _, kv := range [][2]string{{KeyUser, creds.User}, {KeyToken, creds.Token}} {
		if _, err := tx.Exec(query, kv[0], kv[1]); err != nil {
			return fmt.Errorf("sqlite: failed to save %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit credentials: %w", err)
	}
	return nil
}

// Clear removes both entries.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(
		"DELETE FROM credentials WHERE name IN (?, ?)",
		KeyUser, KeyToken,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanCredentials reads (name, value) rows into Credentials.
func scanCredentials(rows *sql.Rows) (Credentials, error) {
	var creds Credentials
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Credentials{}, fmt.Errorf("failed to scan credential: %w", err)
		}
		switch name {
		case KeyUser:
			creds.User = value
		case KeyToken:
			creds.Token = value
		}
	}

	if err := rows.Err(); err != nil {
		return Credentials{}, errors.Join(errors.New("error iterating credentials"), err)
	}
	return creds, nil
}
