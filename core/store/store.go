// Package store is the Postgres data-access layer of the platform.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/TolesaD/botomics/core/database"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrBotMissing is returned when a write references a bot row that no longer exists.
	ErrBotMissing = errors.New("store: bot missing")
)

// Store wraps the shared connection pool.
type Store struct {
	db *sqlx.DB
}

// New returns a Store backed by db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", op, ErrBotMissing)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
