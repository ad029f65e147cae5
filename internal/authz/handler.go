package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// Handler exposes the permission administration endpoints. Routes are
// mounted behind the admin gate; only administrators reach them.
type Handler struct {
	logger    *slog.Logger
	store     GrantStore
	publisher feed.Publisher
	audit     *shared.AuditLogger
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, store GrantStore, publisher feed.Publisher, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		store:     store,
		publisher: publisher,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{userID}", h.listGrants)
	r.Put("/", h.setGrant)
}

// listGrants returns the full grant matrix for one user. Resources with no
// stored row come back all-false; absence is a valid state, not an error.
func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	grants := make([]Grant, 0, len(Resources()))
	stored, err := h.store.ListGrants(r.Context(), userID)
	if err != nil {
		h.logger.Error("list grants", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	byResource := make(map[Resource]Grant, len(stored))
	for _, g := range stored {
		byResource[g.Resource] = g
	}
	for _, res := range Resources() {
		if g, ok := byResource[res]; ok {
			grants = append(grants, g)
			continue
		}
		grants = append(grants, Grant{UserID: userID, Resource: res})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "grants": grants})
}

type setGrantRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Resource  string `json:"resource" validate:"required"`
	Operation string `json:"operation" validate:"required"`
	Value     bool   `json:"value"`
}

// setGrant flips one capability bit. The store performs a single atomic
// upsert, so two concurrent toggles on a fresh key still leave one row.
func (h *Handler) setGrant(w http.ResponseWriter, r *http.Request) {
	var req setGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	resource, err := ParseResource(req.Resource)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	op, err := ParseOperation(req.Operation)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	before, err := h.store.GetGrant(r.Context(), req.UserID, resource)
	if err != nil {
		before = Grant{UserID: req.UserID, Resource: resource}
	}
	grant, err := h.store.SetGrant(r.Context(), req.UserID, resource, op, req.Value)
	if err != nil {
		// Nothing was applied; the client keeps its last known-good state.
		h.logger.Error("set grant", slog.Any("error", err))
		if errors.Is(err, ErrStore) {
			httpx.RespondError(w, httpx.ErrUnavailable)
			return
		}
		httpx.RespondError(w, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(r.Context(), feed.Event{
			Type:  feed.EventUpdate,
			Table: feed.TablePermissions,
			Old:   before,
			New:   grant,
		}); err != nil {
			h.logger.Warn("publish grant event", slog.Any("error", err))
		}
	}
	if h.audit != nil {
		actorID := ""
		if p, ok := PrincipalFromContext(r.Context()); ok {
			actorID = p.ID
		}
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			ActorID:  actorID,
			Action:   "permission." + op.String(),
			Entity:   "user_permissions",
			EntityID: req.UserID + "/" + string(resource),
			Meta:     map[string]any{"value": req.Value},
		}); err != nil {
			h.logger.Warn("audit grant toggle", slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusOK, grant)
}
