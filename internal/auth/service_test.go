package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/shared"
	_ "github.com/pricewatch/pricewatch/testing"
)

const adminEmail = "admin@pricewatch.local"

type memoryRepo struct {
	mu            sync.Mutex
	profiles      map[string]*Profile
	sessions      map[string]string
	updateRoleErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{profiles: make(map[string]*Profile), sessions: make(map[string]string)}
}

func (r *memoryRepo) add(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.profiles[p.ID] = &cp
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) CreateProfile(ctx context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.profiles {
		if existing.Email == p.Email {
			return shared.ErrEmailTaken
		}
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id, role string) error {
	if r.updateRoleErr != nil {
		return r.updateRoleErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		p.Role = role
	}
	return nil
}

func (r *memoryRepo) CreateSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = userID
	return nil
}

func (r *memoryRepo) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memoryRepo) SessionIDsByUser(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, uid := range r.sessions {
		if uid == userID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

var _ Repository = (*memoryRepo)(nil)

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

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestSignUpAssignsRoleByEmail(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, adminEmail, nil, nil, nil)
	ctx := context.Background()

	admin, err := svc.SignUp(ctx, "Admin@PriceWatch.Local", "s3cretpass", "Root")
	require.NoError(t, err)
	require.Equal(t, authz.RoleAdmin, admin.Role)
	require.Equal(t, adminEmail, admin.Email)

	user, err := svc.SignUp(ctx, "alice@example.com", "s3cretpass", "Alice")
	require.NoError(t, err)
	require.Equal(t, authz.RoleUser, user.Role)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, adminEmail, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "alice@example.com", "s3cretpass", "Alice")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "alice@example.com", "otherpass1", "Alice Again")
	require.ErrorIs(t, err, shared.ErrEmailTaken)
}

func TestAuthenticateUniformCredentialFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&Profile{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser, PasswordHash: hashPassword(t, "correct-pass")})
	svc := NewService(repo, adminEmail, nil, nil, nil)
	ctx := context.Background()

	_, wrongPass := svc.Authenticate(ctx, "alice@example.com", "wrong")
	_, unknown := svc.Authenticate(ctx, "nobody@example.com", "wrong")

	require.ErrorIs(t, wrongPass, shared.ErrInvalidCredentials)
	require.ErrorIs(t, unknown, shared.ErrInvalidCredentials)
	require.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestAuthenticateBlockedBeforeSession(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&Profile{ID: "u1", Email: "alice@example.com", Role: authz.RoleBlocked, PasswordHash: hashPassword(t, "correct-pass")})
	svc := NewService(repo, adminEmail, nil, nil, nil)

	_, err := svc.Authenticate(context.Background(), "alice@example.com", "correct-pass")
	require.ErrorIs(t, err, shared.ErrAccountBlocked)
}

func TestAuthenticateCorrectsAdminDrift(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&Profile{ID: "u1", Email: adminEmail, Role: authz.RoleUser, PasswordHash: hashPassword(t, "correct-pass")})
	pub := &memoryPublisher{}
	svc := NewService(repo, adminEmail, nil, pub, nil)

	profile, err := svc.Authenticate(context.Background(), adminEmail, "correct-pass")
	require.NoError(t, err)
	require.Equal(t, authz.RoleAdmin, profile.Role)

	stored, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleAdmin, stored.Role)

	events := pub.list()
	require.Len(t, events, 1)
	require.Equal(t, feed.EventUpdate, events[0].Type)
	require.Equal(t, feed.TableProfiles, events[0].Table)
}

func TestAuthenticateDemotesStrayAdmin(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&Profile{ID: "u1", Email: "alice@example.com", Role: authz.RoleAdmin, PasswordHash: hashPassword(t, "correct-pass")})
	svc := NewService(repo, adminEmail, nil, nil, nil)

	profile, err := svc.Authenticate(context.Background(), "alice@example.com", "correct-pass")
	require.NoError(t, err)
	require.Equal(t, authz.RoleUser, profile.Role)

	stored, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleUser, stored.Role)
}

func TestDriftCorrectionFailureKeepsEffectiveRole(t *testing.T) {
	repo := newMemoryRepo()
	repo.updateRoleErr = errors.New("write refused")
	repo.add(&Profile{ID: "u1", Email: adminEmail, Role: authz.RoleUser, PasswordHash: hashPassword(t, "correct-pass")})
	svc := NewService(repo, adminEmail, nil, nil, nil)

	profile, err := svc.Authenticate(context.Background(), adminEmail, "correct-pass")
	require.NoError(t, err)
	require.Equal(t, authz.RoleAdmin, profile.Role)

	repo.mu.Lock()
	stored := repo.profiles["u1"].Role
	repo.mu.Unlock()
	require.Equal(t, authz.RoleUser, stored, "failed write leaves the stored role untouched")
}

func TestRevokeSessionClearsStoreAndDB(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "pricewatch_session", "secret", time.Hour, false)
	repo := newMemoryRepo()
	svc := NewService(repo, adminEmail, sessions, nil, nil)
	ctx := context.Background()

	require.NoError(t, mr.Set("pw:session:s1", `{"user_id":"u1"}`))
	require.NoError(t, repo.CreateSession(ctx, "s1", "u1", time.Now().Add(time.Hour), "", ""))

	require.NoError(t, svc.RevokeSession(ctx, "s1"))

	require.False(t, mr.Exists("pw:session:s1"))
	ids, err := repo.SessionIDsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestLoadPrincipalResolvesEveryCall(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&Profile{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser})
	svc := NewService(repo, adminEmail, nil, nil, nil)
	ctx := context.Background()

	p, err := svc.LoadPrincipal(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleUser, p.Role)

	require.NoError(t, repo.UpdateRole(ctx, "u1", authz.RoleBlocked))
	p, err = svc.LoadPrincipal(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleBlocked, p.Role)
}
