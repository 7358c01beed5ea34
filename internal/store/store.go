// Package store is the Local Store (spec §4.2): a relational persistence
// layer for cycles, orders, and per-strategy config, backed by SQLite.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps a sqlx connection and the repositories built on top of it.
type Store struct {
	db *sqlx.DB

	Cycles *CycleRepo
	Orders *OrderRepo
	Config *ConfigRepo
}

// Open connects to (creating if absent) the SQLite database at path and
// runs any pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating local store directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to local store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers regardless; avoid lock contention noise

	s := &Store{db: db}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating local store: %w", err)
	}

	s.Cycles = &CycleRepo{db: db}
	s.Orders = &OrderRepo{db: db}
	s.Config = &ConfigRepo{db: db}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
