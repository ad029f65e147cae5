package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewatch/pricewatch/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Profile, error)
	FindByID(ctx context.Context, id string) (*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) error
	UpdateRole(ctx context.Context, id, role string) error
	CreateSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	SessionIDsByUser(ctx context.Context, userID string) ([]string, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileColumns = `id, email, name, role, password_hash, created_at, updated_at`

// FindByEmail fetches a profile by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = $1`, email)
}

// FindByID fetches a profile by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find profile: %w", err)
	}
	return &p, nil
}

// CreateProfile inserts a new profile row.
func (r *PGRepository) CreateProfile(ctx context.Context, p *Profile) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, email, name, role, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		p.ID, p.Email, p.Name, p.Role, p.PasswordHash).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrEmailTaken
		}
		return fmt.Errorf("auth: create profile: %w", err)
	}
	return nil
}

// UpdateRole persists a corrected or administratively changed role.
func (r *PGRepository) UpdateRole(ctx context.Context, id, role string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET role = $1, updated_at = NOW() WHERE id = $2`, role, id)
	if err != nil {
		return fmt.Errorf("auth: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateSession persists a login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''))`,
		id, userID, expiresAt.UTC(), ip, ua)
	if err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

// SessionIDsByUser lists live session ids for a user. Used when a block must
// terminate every session the user holds.
func (r *PGRepository) SessionIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM sessions WHERE user_id = $1 AND expires_at > NOW()`, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: sessions by user: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("auth: scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpiredSessions purges session rows past their expiry.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("auth: delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
