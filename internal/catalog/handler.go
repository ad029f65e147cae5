package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
)

// Handler exposes catalog endpoints. Reads are open to any authenticated
// user; each mutation is gated on the matching authorization decision.
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

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.ResourceProduct, authz.OpAdd))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.ResourceProduct, authz.OpEdit))
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.ResourceProduct, authz.OpDelete))
		r.Delete("/{id}", h.delete)
	})
}

type productRequest struct {
	Code         string  `json:"code" validate:"required,max=64"`
	Name         string  `json:"name" validate:"required,max=200"`
	URL          string  `json:"url" validate:"omitempty,url"`
	CurrentPrice float64 `json:"current_price" validate:"gte=0"`
	IsActive     bool    `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	filters := ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  r.URL.Query().Get("search"),
		SortBy:  r.URL.Query().Get("sort"),
		SortDir: r.URL.Query().Get("dir"),
	}
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		isActive := raw == "true"
		filters.IsActive = &isActive
	}

	products, paging, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products": products,
		"paging":   paging,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), h.actorID(r), Product{
		Code:         req.Code,
		Name:         req.Name,
		URL:          req.URL,
		CurrentPrice: req.CurrentPrice,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.logger.Error("create product failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Update(r.Context(), h.actorID(r), id, Product{
		Code:         req.Code,
		Name:         req.Name,
		URL:          req.URL,
		CurrentPrice: req.CurrentPrice,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.logger.Error("update product failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	if err := h.service.Delete(r.Context(), h.actorID(r), id); err != nil {
		h.logger.Error("delete product failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (productRequest, bool) {
	var req productRequest
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
