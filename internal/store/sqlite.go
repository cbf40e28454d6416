// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/oops"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLite is a durable KV backed by an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache (
    k TEXT PRIMARY KEY,
    v BLOB NOT NULL
);
`

// NewSQLite opens (and initializes if needed) the database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.In("store").With("path", path).Hint("failed to open database").Wrap(err)
	}
	// SQLite supports one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, oops.In("store").With("path", path).Hint("failed to initialize schema").Wrap(err)
	}
	return &SQLite{db: db}, nil
}

// Get implements KV.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM cache WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.In("store").With("key", key).Wrap(err)
	}
	return v, true, nil
}

// Set implements KV.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, value)
	if err != nil {
		return oops.In("store").With("key", key).Wrap(err)
	}
	return nil
}

// Delete implements KV.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE k = ?`, key); err != nil {
		return oops.In("store").With("key", key).Wrap(err)
	}
	return nil
}

// Close implements KV.
func (s *SQLite) Close() error {
	return s.db.Close()
}
