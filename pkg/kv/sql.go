package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

// SQLBackend is a database/sql backed Backend.
// It works with PostgreSQL, MySQL and SQLite drivers. Requires a table with
// schema (see CreateTable):
//
//	CREATE TABLE homepage_kv (
//	    k VARCHAR(255) PRIMARY KEY,
//	    v BYTEA NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
type SQLBackend struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	closed    atomic.Bool
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite
)

// ParseDialect maps a driver name ("postgres", "pgx", "mysql", "sqlite") to
// its dialect.
func ParseDialect(driver string) (SQLDialect, error) {
	switch driver {
	case "postgres", "pgx", "postgresql":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return 0, fmt.Errorf("kv: unknown sql driver %q", driver)
}

// SQLOption configures SQLBackend behavior.
type SQLOption func(*sqlConfig)

type sqlConfig struct {
	tableName string
	dialect   SQLDialect
}

// WithSQLTableName sets the table name.
// Default: "homepage_kv".
func WithSQLTableName(name string) SQLOption {
	return func(c *sqlConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLOption {
	return func(c *sqlConfig) {
		c.dialect = dialect
	}
}

// NewSQLBackend creates a SQL-backed Backend on an open database handle.
func NewSQLBackend(db *sql.DB, opts ...SQLOption) *SQLBackend {
	cfg := &sqlConfig{
		tableName: "homepage_kv",
		dialect:   DialectPostgreSQL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SQLBackend{
		db:        db,
		tableName: cfg.tableName,
		dialect:   cfg.dialect,
	}
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLBackend) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Save upserts data under key.
func (s *SQLBackend) Save(ctx context.Context, key string, data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (k, v, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (k) DO UPDATE SET
				v = EXCLUDED.v,
				updated_at = NOW()
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (k, v, updated_at)
			VALUES (?, ?, NOW())
			ON DUPLICATE KEY UPDATE
				v = VALUES(v),
				updated_at = NOW()
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (k, v, updated_at)
			VALUES (?, ?, datetime('now'))
		`, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("kv: save %q: %w", key, err)
	}
	return nil
}

// Load returns the value stored under key.
func (s *SQLBackend) Load(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	query := fmt.Sprintf(`SELECT v FROM %s WHERE k = %s`, s.tableName, s.placeholder(1))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv: load %q: %w", key, err)
	}
	return data, nil
}

// Delete removes key.
func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE k = %s`, s.tableName, s.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	return nil
}

// Close marks the backend closed.
// Note: This does not close the underlying database connection,
// as it may be shared with other components.
func (s *SQLBackend) Close() error {
	s.closed.Store(true)
	return nil
}

// CreateTable creates the key/value table if it doesn't exist.
func (s *SQLBackend) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				k VARCHAR(255) PRIMARY KEY,
				v BYTEA NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				k VARCHAR(255) PRIMARY KEY,
				v BLOB NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			)
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				k TEXT PRIMARY KEY,
				v BLOB NOT NULL,
				updated_at TEXT DEFAULT (datetime('now'))
			)
		`, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("kv: create table %s: %w", s.tableName, err)
	}
	return nil
}
