package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStore wraps persistence failures so callers can distinguish "denied"
// from "could not check". Readers fail closed on it; writers surface it as a
// transient error and must not update local state.
var ErrStore = errors.New("authz: permission store failure")

// GrantStore reads and writes permission grants keyed by (user, resource).
type GrantStore interface {
	// GetGrant returns the grant for the natural key. Absence of a row is a
	// valid state and yields an all-false grant, never an error.
	GetGrant(ctx context.Context, userID string, resource Resource) (Grant, error)
	// ListGrants returns every stored grant for a user. Order is irrelevant.
	ListGrants(ctx context.Context, userID string) ([]Grant, error)
	// SetGrant flips one capability bit, creating the row when the natural
	// key does not exist yet. The upsert is a single atomic statement.
	SetGrant(ctx context.Context, userID string, resource Resource, op Operation, value bool) (Grant, error)
}

// PGGrantStore implements GrantStore on the user_permissions table. The table
// carries a uniqueness constraint on (user_id, resource), so concurrent
// toggles on a brand-new key collapse to a single row with last-write-wins
// on the targeted field.
type PGGrantStore struct {
	pool *pgxpool.Pool
}

// NewPGGrantStore constructs a PostgreSQL backed grant store.
func NewPGGrantStore(pool *pgxpool.Pool) *PGGrantStore {
	return &PGGrantStore{pool: pool}
}

const grantColumns = `user_id, resource, can_add, can_edit, can_delete, updated_at`

func (s *PGGrantStore) GetGrant(ctx context.Context, userID string, resource Resource) (Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM user_permissions WHERE user_id = $1 AND resource = $2`
	var g Grant
	err := s.pool.QueryRow(ctx, query, userID, string(resource)).
		Scan(&g.UserID, &g.Resource, &g.CanAdd, &g.CanEdit, &g.CanDelete, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{UserID: userID, Resource: resource}, nil
		}
		return Grant{}, fmt.Errorf("%w: get grant: %v", ErrStore, err)
	}
	return g, nil
}

func (s *PGGrantStore) ListGrants(ctx context.Context, userID string) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+grantColumns+` FROM user_permissions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", ErrStore, err)
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.UserID, &g.Resource, &g.CanAdd, &g.CanEdit, &g.CanDelete, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan grant: %v", ErrStore, err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", ErrStore, err)
	}
	return grants, nil
}

// One statement per operation so only the targeted column is ever written.
const (
	setAddSQL = `INSERT INTO user_permissions (user_id, resource, can_add, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, resource) DO UPDATE SET can_add = EXCLUDED.can_add, updated_at = NOW()
		RETURNING ` + grantColumns

	setEditSQL = `INSERT INTO user_permissions (user_id, resource, can_edit, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, resource) DO UPDATE SET can_edit = EXCLUDED.can_edit, updated_at = NOW()
		RETURNING ` + grantColumns

	setDeleteSQL = `INSERT INTO user_permissions (user_id, resource, can_delete, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, resource) DO UPDATE SET can_delete = EXCLUDED.can_delete, updated_at = NOW()
		RETURNING ` + grantColumns
)

func (s *PGGrantStore) SetGrant(ctx context.Context, userID string, resource Resource, op Operation, value bool) (Grant, error) {
	var query string
	switch op {
	case OpAdd:
		query = setAddSQL
	case OpEdit:
		query = setEditSQL
	case OpDelete:
		query = setDeleteSQL
	default:
		return Grant{}, fmt.Errorf("authz: set grant: unknown operation %d", op)
	}
	var g Grant
	err := s.pool.QueryRow(ctx, query, userID, string(resource), value).
		Scan(&g.UserID, &g.Resource, &g.CanAdd, &g.CanEdit, &g.CanDelete, &g.UpdatedAt)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: set grant: %v", ErrStore, err)
	}
	return g, nil
}

var _ GrantStore = (*PGGrantStore)(nil)
