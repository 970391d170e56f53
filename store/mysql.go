package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements CredentialStore using MySQL.
// Several clients can share one table; each uses its own profile name.
type MySQLStore struct {
	db      *sql.DB
	profile string
}

// NewMySQL creates a new MySQL credential store on an open connection.
// An empty profile defaults to "default".
func NewMySQL(db *sql.DB, profile string) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if profile == "" {
		profile = "default"
	}
	return &MySQLStore{db: db, profile: profile}, nil
}

// NewMySQLFromDSN creates a new MySQL credential store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn, profile string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db, profile)
}

func createMySQLSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		profile    VARCHAR(255) NOT NULL,
		name       VARCHAR(32) NOT NULL,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,

		PRIMARY KEY (profile, name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}

// Load returns the stored credentials for this profile.
func (s *MySQLStore) Load() (Credentials, error) {
	rows, err := s.db.Query(
		"SELECT name, value FROM credentials WHERE profile = ? AND name IN (?, ?)",
		s.profile, KeyUser, KeyToken,
	)
	if err != nil {
		return Credentials{}, fmt.Errorf("mysql: failed to query credentials: %w", err)
	}
	defer rows.Close()

	creds, err := scanCredentials(rows)
	if err != nil {
		return Credentials{}, fmt.Errorf("mysql: %w", err)
	}
	return creds, nil
}

// Save replaces both entries in a single transaction.
func (s *MySQLStore) Save(creds Credentials) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("mysql: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO credentials (profile, name, value) VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE value = VALUES(value)
	`
	for _, kv := range [][2]string{{KeyUser, creds.User}, {KeyToken, creds.Token}} {
		if _, err := tx.Exec(query, s.profile, kv[0], kv[1]); err != nil {
			return fmt.Errorf("mysql: failed to save %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql: failed to commit credentials: %w", err)
	}
	return nil
}

// Clear removes both entries for this profile.
func (s *MySQLStore) Clear() error {
	_, err := s.db.Exec(
		"DELETE FROM credentials WHERE profile = ? AND name IN (?, ?)",
		s.profile, KeyUser, KeyToken,
	)
	if err != nil {
		return fmt.Errorf("mysql: failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
