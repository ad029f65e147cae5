package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/shared"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sessionRequest(t *testing.T, sm *shared.SessionManager, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(req.Context(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func principalEcho(t *testing.T, captured *authz.Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := authz.PrincipalFromContext(r.Context())
		require.True(t, ok)
		*captured = p
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequirePrincipalRejectsAnonymous(t *testing.T) {
	client := newTestRedis(t)
	sm := shared.NewSessionManager(client, "pricewatch_session", "secret", time.Hour, false)
	repo := newMemoryRepo()
	mw := Middleware{Service: NewService(repo, adminEmail, sm, nil, nil)}

	rec := httptest.NewRecorder()
	mw.RequirePrincipal(principalEcho(t, &authz.Principal{})).ServeHTTP(rec, sessionRequest(t, sm, ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePrincipalInjectsResolvedPrincipal(t *testing.T) {
	client := newTestRedis(t)
	sm := shared.NewSessionManager(client, "pricewatch_session", "secret", time.Hour, false)
	repo := newMemoryRepo()
	repo.add(&Profile{ID: "u1", Email: "alice@example.com", Role: authz.RoleUser})
	mw := Middleware{Service: NewService(repo, adminEmail, sm, nil, nil)}

	var got authz.Principal
	rec := httptest.NewRecorder()
	mw.RequirePrincipal(principalEcho(t, &got)).ServeHTTP(rec, sessionRequest(t, sm, "u1"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "u1", got.ID)
	require.Equal(t, authz.RoleUser, got.Role)
}

func TestRequirePrincipalBlockedFeedsGuard(t *testing.T) {
	client := newTestRedis(t)
	sm := shared.NewSessionManager(client, "pricewatch_session", "secret", time.Hour, false)
	repo := newMemoryRepo()
	repo.add(&Profile{ID: "u1", Email: "alice@example.com", Role: authz.RoleBlocked})
	svc := NewService(repo, adminEmail, sm, nil, nil)
	guard := authz.NewGuard(svc, time.Minute, nil, nil)
	mw := Middleware{Service: svc, Guard: guard}

	req := sessionRequest(t, sm, "u1")
	sess := shared.SessionFromContext(req.Context())

	rec := httptest.NewRecorder()
	mw.RequirePrincipal(principalEcho(t, &authz.Principal{})).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, authz.GuardPendingLogout, guard.State(sess.ID))
}
