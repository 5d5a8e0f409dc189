// Package store is the data access layer, keeping SQL queries separate
// from business logic.
package store

import (
	"database/sql"
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func wrap(code string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return oops.Code(code).Wrap(ErrNotFound)
	}
	return oops.Code(code).Wrap(err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
