// Package store implements spec.md §4.1's persistence contract against
// PostgreSQL via database/sql + lib/pq, grounded on the teacher's
// internal/repository/postgres package: dynamic SET-clause building
// (Update), RowsAffected()==0-as-not-found (UpdateStatus), and
// COALESCE-on-read for nullable text columns (Get).
package store

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a lookup by primary key matches no row.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by a compare-and-set write whose expected
// precondition no longer holds (e.g. TransitionMessage's from-status).
var ErrConflict = errors.New("store: conflict")

// Store is the Postgres-backed implementation of every repository
// interface internal/consent, internal/orchestrator, internal/webhook,
// internal/api, and internal/scheduler depend on, plus the Segment/Template/Campaign CRUD and audit trail
// spec.md §4.1 names directly.
type Store struct {
	db *sql.DB
}

// New creates a Store over an already-opened *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}
