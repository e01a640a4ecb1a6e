// Package directory reads the platform's user and group records.
//
// The files service does not own identity; it only needs to know whether
// an object id still resolves to a real entity (upload guard) and what a
// user's email address is (fallback avatar hashing).
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a user or group does not exist.
var ErrNotFound = errors.New("directory: not found")

// Lookup answers existence and email queries against the platform directory.
type Lookup interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	GroupExists(ctx context.Context, id int64) (bool, error)
	// UserEmail returns the user's email address, or ErrNotFound.
	UserEmail(ctx context.Context, id int64) (string, error)
}

// Repository implements Lookup against the shared Postgres database.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UserExists reports whether a user row exists for id.
func (r *Repository) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	return exists, nil
}

// GroupExists reports whether a group row exists for id.
func (r *Repository) GroupExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check group %d: %w", id, err)
	}
	return exists, nil
}

// UserEmail fetches the email address for a user id.
func (r *Repository) UserEmail(ctx context.Context, id int64) (string, error) {
	var email string
	err := r.db.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`, id,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user email %d: %w", id, err)
	}
	return email, nil
}
