package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	guard          *authz.Guard
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance. guard may be nil.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, guard *authz.Guard) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		guard:          guard,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignUp)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, shared.ErrEmailTaken) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", shared.UserSafeMessage(err))
			return
		}
		h.logger.Error("sign up", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sessionResponse{
		UserID: profile.ID,
		Email:  profile.Email,
		Name:   profile.Name,
		Role:   profile.Role,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	profile, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrAccountBlocked) {
			// Denied before any session is established.
			httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
			return
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(shared.ErrInvalidCredentials))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.SetUser(profile.ID)
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, profile.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, sessionResponse{
		UserID: profile.ID,
		Email:  profile.Email,
		Name:   profile.Name,
		Role:   profile.Role,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
		if h.guard != nil {
			h.guard.Forget(sess.ID)
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// handleSession restores the current identity, re-resolving the role on
// every call so blocks and drift corrections surface immediately.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no active session")
		return
	}
	principal, err := h.service.LoadPrincipal(r.Context(), sess.User())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session is no longer valid")
		return
	}
	if principal.Role == authz.RoleBlocked {
		// Session restore is a guard trigger like any other resolution.
		if h.guard != nil {
			h.guard.OnPrincipalChanged(r.Context(), sess.ID, principal.ID, principal.Role)
		}
		httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(shared.ErrAccountBlocked))
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		UserID: principal.ID,
		Email:  principal.Email,
		Role:   principal.Role,
	})
}
