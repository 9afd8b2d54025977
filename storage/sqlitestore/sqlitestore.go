// Package sqlitestore implements storage.DurableStore on SQLite. The host
// simulator uses it as the node's flash key/value partition.
package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"pixelweather-go/errcode"
)

const schema = `
CREATE TABLE IF NOT EXISTS nvs (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (namespace, key)
);`

// Store is a namespaced key/value table. Writes are synchronous so a value is
// on disk when Set returns, matching flash semantics.
type Store struct {
	db        *sql.DB
	namespace string
}

// Open creates or opens the database at path and scopes all keys to
// namespace.
func Open(path, namespace string) (*Store, error) {
	if namespace == "" {
		return nil, errcode.New(errcode.InvalidParams, "open", "empty namespace")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One writer, like the flash driver it stands in for.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare database: %w", err)
		}
	}
	return &Store{db: db, namespace: namespace}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRow(
		"SELECT value FROM nvs WHERE namespace = ? AND key = ?", s.namespace, key,
	).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, errcode.Wrap(errcode.NvsRead, "get", err)
	}
	return v, true, nil
}

func (s *Store) Set(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(
		`INSERT INTO nvs (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`,
		s.namespace, key, value,
	)
	return errcode.Wrap(errcode.NvsWrite, "set", err)
}

func (s *Store) Delete(key string) error {
	res, err := s.db.Exec("DELETE FROM nvs WHERE namespace = ? AND key = ?", s.namespace, key)
	if err != nil {
		return errcode.Wrap(errcode.NvsWrite, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errcode.Wrap(errcode.NvsWrite, "delete", err)
	}
	if n == 0 {
		return errcode.New(errcode.InvalidNvsKey, "delete", key)
	}
	return nil
}

// Keys lists the keys of this namespace.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM nvs WHERE namespace = ? ORDER BY key", s.namespace)
	if err != nil {
		return nil, errcode.Wrap(errcode.NvsRead, "keys", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errcode.Wrap(errcode.NvsRead, "keys", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
