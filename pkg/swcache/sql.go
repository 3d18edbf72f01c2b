package swcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yanachan-dev/homepage/pkg/kv"
)

// SQLStorage is a database/sql backed CacheStorage, so the offline cache
// survives restarts. It uses two tables (see CreateTables):
//
//	CREATE TABLE homepage_caches (
//	    id   BIGSERIAL PRIMARY KEY,
//	    name TEXT UNIQUE NOT NULL
//	);
//	CREATE TABLE homepage_cache_entries (
//	    cache     TEXT NOT NULL REFERENCES homepage_caches (name) ON DELETE CASCADE,
//	    url       TEXT NOT NULL,
//	    status    INTEGER NOT NULL,
//	    header    TEXT NOT NULL,
//	    body      BYTEA NOT NULL,
//	    stored_at BIGINT NOT NULL,
//	    PRIMARY KEY (cache, url)
//	);
type SQLStorage struct {
	db      *sql.DB
	dialect kv.SQLDialect
	names   string
	entries string
}

// SQLOption configures SQLStorage.
type SQLOption func(*SQLStorage)

// WithSQLTablePrefix sets the table name prefix.
// Default: "homepage".
func WithSQLTablePrefix(prefix string) SQLOption {
	return func(s *SQLStorage) {
		s.names = prefix + "_caches"
		s.entries = prefix + "_cache_entries"
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: kv.DialectPostgreSQL.
func WithSQLDialect(d kv.SQLDialect) SQLOption {
	return func(s *SQLStorage) {
		s.dialect = d
	}
}

// NewSQLStorage creates a SQLStorage on an open database handle.
func NewSQLStorage(db *sql.DB, opts ...SQLOption) *SQLStorage {
	s := &SQLStorage{
		db:      db,
		dialect: kv.DialectPostgreSQL,
		names:   "homepage_caches",
		entries: "homepage_cache_entries",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ph returns the nth placeholder for the dialect.
func (s *SQLStorage) ph(n int) string {
	if s.dialect == kv.DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// CreateTables creates the cache tables if they don't exist.
func (s *SQLStorage) CreateTables(ctx context.Context) error {
	var names, entries string
	switch s.dialect {
	case kv.DialectPostgreSQL:
		names = `CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL
		)`
		entries = `CREATE TABLE IF NOT EXISTS %s (
			cache TEXT NOT NULL REFERENCES %s (name) ON DELETE CASCADE,
			url TEXT NOT NULL,
			status INTEGER NOT NULL,
			header TEXT NOT NULL,
			body BYTEA NOT NULL,
			stored_at BIGINT NOT NULL,
			PRIMARY KEY (cache, url)
		)`
	case kv.DialectMySQL:
		names = `CREATE TABLE IF NOT EXISTS %s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL
		)`
		entries = `CREATE TABLE IF NOT EXISTS %s (
			cache VARCHAR(255) NOT NULL,
			url VARCHAR(2048) NOT NULL,
			status INT NOT NULL,
			header TEXT NOT NULL,
			body LONGBLOB NOT NULL,
			stored_at BIGINT NOT NULL,
			PRIMARY KEY (cache, url(512)),
			FOREIGN KEY (cache) REFERENCES %s (name) ON DELETE CASCADE
		)`
	case kv.DialectSQLite:
		names = `CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL
		)`
		entries = `CREATE TABLE IF NOT EXISTS %s (
			cache TEXT NOT NULL REFERENCES %s (name) ON DELETE CASCADE,
			url TEXT NOT NULL,
			status INTEGER NOT NULL,
			header TEXT NOT NULL,
			body BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			PRIMARY KEY (cache, url)
		)`
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(names, s.names)); err != nil {
		return fmt.Errorf("swcache: create table %s: %w", s.names, err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(entries, s.entries, s.names)); err != nil {
		return fmt.Errorf("swcache: create table %s: %w", s.entries, err)
	}
	return nil
}

func (s *SQLStorage) Open(ctx context.Context, name string) (Cache, error) {
	var query string
	switch s.dialect {
	case kv.DialectPostgreSQL:
		query = `INSERT INTO %s (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	case kv.DialectMySQL:
		query = `INSERT IGNORE INTO %s (name) VALUES (?)`
	case kv.DialectSQLite:
		query = `INSERT OR IGNORE INTO %s (name) VALUES (?)`
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(query, s.names), name); err != nil {
		return nil, fmt.Errorf("swcache: open %q: %w", name, err)
	}
	return &sqlCache{s: s, name: name}, nil
}

func (s *SQLStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM %s ORDER BY id`, s.names))
	if err != nil {
		return nil, fmt.Errorf("swcache: list caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("swcache: list caches: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLStorage) Delete(ctx context.Context, name string) (deleted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("swcache: delete %q: %w", name, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE cache = %s`, s.entries, s.ph(1)), name); err != nil {
		return false, fmt.Errorf("swcache: delete %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = %s`, s.names, s.ph(1)), name)
	if err != nil {
		return false, fmt.Errorf("swcache: delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swcache: delete %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("swcache: delete %q: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLStorage) Match(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !matchable(req) {
		return nil, ErrNotCached
	}
	query := fmt.Sprintf(`
		SELECT e.url, e.status, e.header, e.body, e.stored_at
		FROM %s e JOIN %s c ON c.name = e.cache
		WHERE e.url = %s
		ORDER BY c.id
		LIMIT 1
	`, s.entries, s.names, s.ph(1))
	return s.matchRow(s.db.QueryRowContext(ctx, query, Key(req.URL)), req)
}

func (s *SQLStorage) matchRow(row *sql.Row, req *http.Request) (*http.Response, error) {
	var (
		e      Entry
		header string
		stored int64
	)
	if err := row.Scan(&e.URL, &e.Status, &header, &e.Body, &stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("swcache: match %s: %w", req.URL, err)
	}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, fmt.Errorf("swcache: decode header of %s: %w", e.URL, err)
	}
	e.StoredAt = time.Unix(0, stored)
	return e.Response(req), nil
}

// sqlCache is one named cache inside a SQLStorage.
type sqlCache struct {
	s    *SQLStorage
	name string
}

func (c *sqlCache) Match(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !matchable(req) {
		return nil, ErrNotCached
	}
	query := fmt.Sprintf(`SELECT url, status, header, body, stored_at FROM %s WHERE cache = %s AND url = %s`,
		c.s.entries, c.s.ph(1), c.s.ph(2))
	return c.s.matchRow(c.s.db.QueryRowContext(ctx, query, c.name, Key(req.URL)), req)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c *sqlCache) put(ctx context.Context, db execer, e Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("swcache: encode header of %s: %w", e.URL, err)
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}

	// The row is written only while the cache exists. A write-through put
	// that finishes after Activate deleted its cache is dropped instead of
	// leaving rows that no cache name points to.
	var query string
	switch c.s.dialect {
	case kv.DialectPostgreSQL:
		query = `
			INSERT INTO %[1]s (cache, url, status, header, body, stored_at)
			SELECT $1, $2, $3::integer, $4, $5::bytea, $6::bigint
			WHERE EXISTS (SELECT 1 FROM %[2]s WHERE name = $7)
			ON CONFLICT (cache, url) DO UPDATE SET
				status = EXCLUDED.status,
				header = EXCLUDED.header,
				body = EXCLUDED.body,
				stored_at = EXCLUDED.stored_at
		`
	case kv.DialectMySQL:
		query = `
			INSERT INTO %[1]s (cache, url, status, header, body, stored_at)
			SELECT ?, ?, ?, ?, ?, ? FROM DUAL
			WHERE EXISTS (SELECT 1 FROM %[2]s WHERE name = ?)
			ON DUPLICATE KEY UPDATE
				status = VALUES(status),
				header = VALUES(header),
				body = VALUES(body),
				stored_at = VALUES(stored_at)
		`
	case kv.DialectSQLite:
		query = `
			INSERT OR REPLACE INTO %[1]s (cache, url, status, header, body, stored_at)
			SELECT ?, ?, ?, ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM %[2]s WHERE name = ?)
		`
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(query, c.s.entries, c.s.names),
		c.name, e.URL, e.Status, string(header), body, e.StoredAt.UnixNano(), c.name)
	if err != nil {
		return fmt.Errorf("swcache: put %s: %w", e.URL, err)
	}
	return nil
}

func (c *sqlCache) Put(ctx context.Context, e Entry) error {
	return c.put(ctx, c.s.db, e)
}

func (c *sqlCache) AddAll(ctx context.Context, entries []Entry) (err error) {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("swcache: add all: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, e := range entries {
		if err = c.put(ctx, tx, e); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("swcache: add all: %w", err)
	}
	return nil
}

func (c *sqlCache) Delete(ctx context.Context, req *http.Request) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cache = %s AND url = %s`, c.s.entries, c.s.ph(1), c.s.ph(2))
	res, err := c.s.db.ExecContext(ctx, query, c.name, Key(req.URL))
	if err != nil {
		return false, fmt.Errorf("swcache: delete %s: %w", req.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swcache: delete %s: %w", req.URL, err)
	}
	return n > 0, nil
}

func (c *sqlCache) Keys(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT url FROM %s WHERE cache = %s ORDER BY stored_at, url`, c.s.entries, c.s.ph(1))
	rows, err := c.s.db.QueryContext(ctx, query, c.name)
	if err != nil {
		return nil, fmt.Errorf("swcache: keys of %q: %w", c.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("swcache: keys of %q: %w", c.name, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
