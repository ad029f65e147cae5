package auth

import (
	"log/slog"
	"net/http"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// Middleware resolves the session into a principal on every request. The
// role is re-resolved on each load so drift corrections and blocks take
// effect without waiting for re-login.
type Middleware struct {
	Service *Service
	Guard   *authz.Guard
	Logger  *slog.Logger
}

// RequirePrincipal rejects unauthenticated requests and feeds blocked
// resolutions into the guard before denying.
func (m Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		principal, err := m.Service.LoadPrincipal(r.Context(), sess.User())
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("load principal", slog.String("user_id", sess.User()), slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session is no longer valid")
			return
		}
		if principal.Role == authz.RoleBlocked {
			if m.Guard != nil {
				m.Guard.OnPrincipalChanged(r.Context(), sess.ID, principal.ID, principal.Role)
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(shared.ErrAccountBlocked))
			return
		}
		ctx := authz.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
