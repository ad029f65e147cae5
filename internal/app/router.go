package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pricewatch/pricewatch/internal/auth"
	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/catalog"
	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/observability"
	"github.com/pricewatch/pricewatch/internal/pricehist"
	"github.com/pricewatch/pricewatch/internal/shared"
	"github.com/pricewatch/pricewatch/internal/users"
	"github.com/pricewatch/pricewatch/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler       *auth.Handler
	AuthMiddleware    auth.Middleware
	AuthzMiddleware   authz.Middleware
	CatalogHandler    *catalog.Handler
	PriceHistHandler  *pricehist.Handler
	UsersHandler      *users.Handler
	PermissionHandler *authz.Handler
	FeedHandler       *feed.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/csrf", csrfTokenHandler(params))
			params.AuthHandler.MountRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.RequirePrincipal)

			r.Route("/products", func(r chi.Router) {
				params.CatalogHandler.MountRoutes(r)
				r.Route("/{productID}/prices", params.PriceHistHandler.MountRoutes)
			})

			r.Route("/feed", params.FeedHandler.MountRoutes)

			r.Group(func(r chi.Router) {
				r.Use(params.AuthzMiddleware.RequireAdmin)
				r.Route("/users", params.UsersHandler.MountRoutes)
				r.Route("/permissions", params.PermissionHandler.MountRoutes)
				if params.JobHandler != nil {
					r.Route("/jobs", params.JobHandler.MountRoutes)
				}
			})
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// csrfTokenHandler issues the token clients must echo back in the
// X-CSRF-Token header on mutating requests.
func csrfTokenHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			params.Logger.Error("issue csrf token", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"csrf_token":"` + token + `"}`))
	}
}
