package pricehist

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
)

// Handler exposes price history endpoints, nested under a product:
// /api/products/{productID}/prices.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authzMW authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authzMW, validator: validator.New()}
}

// MountRoutes registers price history routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.ResourcePriceHistory, authz.OpAdd))
		r.Post("/", h.add)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.ResourcePriceHistory, authz.OpEdit))
		r.Put("/{id}", h.edit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.ResourcePriceHistory, authz.OpDelete))
		r.Delete("/{id}", h.remove)
	})
}

type pricePointRequest struct {
	Price      float64    `json:"price" validate:"gte=0"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
	Note       string     `json:"note" validate:"max=500"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	points, err := h.service.ListByProduct(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("list price history failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "prices": points})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	point := PricePoint{ProductID: productID, Price: req.Price, Note: req.Note}
	if req.RecordedAt != nil {
		point.RecordedAt = *req.RecordedAt
	}
	created, err := h.service.Add(r.Context(), h.actorID(r), point)
	if err != nil {
		h.logger.Error("add price point failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid price point id")
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Edit(r.Context(), h.actorID(r), id, req.Price, req.Note)
	if err != nil {
		h.logger.Error("edit price point failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid price point id")
		return
	}
	if err := h.service.Remove(r.Context(), h.actorID(r), id); err != nil {
		h.logger.Error("delete price point failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (pricePointRequest, bool) {
	var req pricePointRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) actorID(r *http.Request) string {
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return ""
}
