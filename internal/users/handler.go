package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// Handler manages user administration endpoints. The router mounts these
// behind the admin gate.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers user management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/{id}", h.getUser)
	r.Put("/{id}/role", h.changeRole)
	r.Post("/{id}/block", h.blockUser)
	r.Post("/{id}/unblock", h.unblockUser)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,max=64"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.ChangeRole(r.Context(), h.actorID(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		h.respondErr(w, "change role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) blockUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Block(r.Context(), h.actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, "block user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) unblockUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Unblock(r.Context(), h.actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, "unblock user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) actorID(r *http.Request) string {
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return ""
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
