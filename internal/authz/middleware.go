package authz

import (
	"log/slog"
	"net/http"

	"github.com/pricewatch/pricewatch/internal/platform/httpx"
)

// DenialCounter records authorization denials. Satisfied by
// observability.Metrics.
type DenialCounter interface {
	CountDenial(resource, operation string)
}

// Middleware wires authorization checks for HTTP handlers. The principal is
// expected in the request context, placed there by the auth middleware.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Denials   DenialCounter
}

// Require denies the request unless the principal may perform op on
// resource. The decision reason is surfaced in the problem response; denial
// is terminal for the attempted action.
func (m Middleware) Require(resource Resource, op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			decision := m.Evaluator.Authorize(r.Context(), p, resource, op)
			if !decision.Allowed {
				if m.Denials != nil {
					m.Denials.CountDenial(string(resource), op.String())
				}
				if m.Logger != nil {
					m.Logger.Info("authorization denied",
						slog.String("user_id", p.ID),
						slog.String("resource", string(resource)),
						slog.String("operation", op.String()),
						slog.String("reason", decision.Reason))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin restricts a route to administrators (fixed email or role
// admin).
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		if !m.Evaluator.IsAdmin(p) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
