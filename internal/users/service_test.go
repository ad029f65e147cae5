package users

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
	_ "github.com/pricewatch/pricewatch/testing"
)

const adminEmail = "admin@pricewatch.local"

type memoryRepo struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemoryRepo(users ...User) *memoryRepo {
	r := &memoryRepo{users: make(map[string]User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memoryRepo) ListUsers(ctx context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryRepo) GetUser(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return User{}, shared.ErrNotFound
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id, role string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	u.Role = role
	r.users[id] = u
	return u, nil
}

var _ RepositoryPort = (*memoryRepo)(nil)

type memoryPublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *memoryPublisher) Publish(ctx context.Context, event feed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memoryPublisher) list() []feed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]feed.Event(nil), p.events...)
}

func TestChangeRoleUpdatesAndPublishes(t *testing.T) {
	repo := newMemoryRepo(User{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser})
	pub := &memoryPublisher{}
	svc := NewService(repo, adminEmail, pub, nil, nil)

	updated, err := svc.ChangeRole(context.Background(), "actor", "u1", "auditor")
	require.NoError(t, err)
	require.Equal(t, "auditor", updated.Role)

	events := pub.list()
	require.Len(t, events, 1)
	require.Equal(t, feed.EventUpdate, events[0].Type)
	require.Equal(t, feed.TableProfiles, events[0].Table)
}

func TestChangeRoleRejectsEmptyRole(t *testing.T) {
	repo := newMemoryRepo(User{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser})
	svc := NewService(repo, adminEmail, nil, nil, nil)

	_, err := svc.ChangeRole(context.Background(), "actor", "u1", "  ")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestChangeRoleProtectsFixedAdmin(t *testing.T) {
	repo := newMemoryRepo(User{ID: "u1", Email: adminEmail, Role: authz.RoleAdmin})
	svc := NewService(repo, adminEmail, nil, nil, nil)

	_, err := svc.ChangeRole(context.Background(), "actor", "u1", authz.RoleBlocked)
	require.ErrorIs(t, err, httpx.ErrValidation)

	current, err := repo.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleAdmin, current.Role)
}

func TestChangeRoleReservesAdminRole(t *testing.T) {
	repo := newMemoryRepo(User{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser})
	svc := NewService(repo, adminEmail, nil, nil, nil)

	_, err := svc.ChangeRole(context.Background(), "actor", "u1", authz.RoleAdmin)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestBlockAndUnblock(t *testing.T) {
	repo := newMemoryRepo(User{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser})
	svc := NewService(repo, adminEmail, nil, nil, nil)
	ctx := context.Background()

	blocked, err := svc.Block(ctx, "actor", "u1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleBlocked, blocked.Role)

	restored, err := svc.Unblock(ctx, "actor", "u1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleUser, restored.Role)
}

func TestUnblockRequiresBlockedRole(t *testing.T) {
	repo := newMemoryRepo(User{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser})
	svc := NewService(repo, adminEmail, nil, nil, nil)

	_, err := svc.Unblock(context.Background(), "actor", "u1")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestChangeRoleUnknownUser(t *testing.T) {
	svc := NewService(newMemoryRepo(), adminEmail, nil, nil, nil)

	_, err := svc.ChangeRole(context.Background(), "actor", "missing", "user")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
