package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewatch/pricewatch/internal/shared"
)

// Repository provides PostgreSQL backed persistence over the profiles table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all profiles ordered by email.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, name, role, created_at, updated_at FROM profiles ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return users, nil
}

// GetUser fetches one profile by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, email, name, role, created_at, updated_at FROM profiles WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

// UpdateRole persists an administrative role change.
func (r *Repository) UpdateRole(ctx context.Context, id, role string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`UPDATE profiles SET role = $1, updated_at = NOW() WHERE id = $2 RETURNING id, email, name, role, created_at, updated_at`,
		role, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: update role: %w", err)
	}
	return user, nil
}
