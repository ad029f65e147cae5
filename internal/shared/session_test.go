package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "pricewatch_session", "secret", time.Hour, false), mr
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	sess.SetUser("u1")
	sess.Set("theme", "dark")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "pricewatch_session", cookies[0].Name)

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.AddCookie(cookies[0])
	restored, err := sm.Load(ctx, second)
	require.NoError(t, err)
	require.Equal(t, "u1", restored.User())
	require.Equal(t, "dark", restored.Get("theme"))
}

func TestSessionDestroyClearsCookieAndStore(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("u1")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))
	require.True(t, mr.Exists("pw:session:"+sess.ID))

	sm.Destroy(sess)
	rec = httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	require.False(t, mr.Exists("pw:session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func TestDestroyByID(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("pw:session:s1", `{"user_id":"u1"}`))
	require.NoError(t, sm.DestroyByID(ctx, "s1"))
	require.False(t, mr.Exists("pw:session:s1"))

	// Unknown and empty ids are no-ops.
	require.NoError(t, sm.DestroyByID(ctx, "missing"))
	require.NoError(t, sm.DestroyByID(ctx, ""))
}
