package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"eventpipeline/pkg/models"
)

// ErrDuplicateEmail is returned by Insert when a user with the same email
// already exists. Under at-least-once delivery this is an expected
// condition, not a fault.
var ErrDuplicateEmail = errors.New("store: user email already exists")

const pqUniqueViolation = "23505"

// UserStore owns the users table.
type UserStore struct {
	DB *sql.DB
}

// NewUserStore creates a UserStore backed by the given database.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{DB: db}
}

// Insert persists a new user. A unique-constraint conflict on email maps to
// ErrDuplicateEmail.
func (s *UserStore) Insert(ctx context.Context, u *models.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, name, active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
		u.ID, u.Email, u.Name, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("store: insert user: %w", err)
	}
	return nil
}

// UpdateByID applies a partial update; empty fields keep their current
// value. Returns the updated user, or nil if no user has that ID.
func (s *UserStore) UpdateByID(ctx context.Context, id, email, name string) (*models.User, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET email = COALESCE(NULLIF($1, ''), email),
			name = COALESCE(NULLIF($2, ''), name), updated_at = $3
		 WHERE id = $4`,
		email, name, time.Now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: update user %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return s.FindByID(ctx, id)
}

// Deactivate marks the user inactive. Returns false if no user has that ID.
func (s *UserStore) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		"UPDATE users SET active = FALSE, updated_at = $1 WHERE id = $2",
		time.Now(), id,
	)
	if err != nil {
		return false, fmt.Errorf("store: deactivate user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: deactivate user %s: %w", id, err)
	}
	return n > 0, nil
}

// FindByID returns the user with the given ID, or nil if it does not exist.
func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, email, name, active, created_at, updated_at FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user %s: %w", id, err)
	}
	return &u, nil
}

// List returns all users, newest first.
func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, email, name, active, created_at, updated_at FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate users: %w", err)
	}
	return users, nil
}
