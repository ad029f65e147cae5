package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// Service handles catalog business logic. Authorization happens in the HTTP
// layer before any of the mutating methods run.
type Service struct {
	repo      Repository
	publisher feed.Publisher
	audit     *shared.AuditLogger
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, publisher feed.Publisher, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, audit: audit, logger: logger}
}

// List returns products with pagination metadata.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, shared.Pagination, error) {
	products, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range products {
		products[i].PriceDisplay = FormatPrice(products[i].CurrentPrice)
	}
	return products, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", httpx.ErrValidation)
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.PriceDisplay = FormatPrice(p.CurrentPrice)
	return p, nil
}

// Create inserts a product and announces it on the change feed.
func (s *Service) Create(ctx context.Context, actorID string, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.publish(ctx, feed.Event{Type: feed.EventInsert, Table: feed.TableProduct, New: created})
	s.record(ctx, actorID, "product.create", created.ID, nil)
	return created, nil
}

// Update replaces a product's fields and announces the change.
func (s *Service) Update(ctx context.Context, actorID string, id int64, product Product) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", httpx.ErrValidation)
	}
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	updated, err := s.repo.Update(ctx, id, product)
	if err != nil {
		return Product{}, err
	}
	s.publish(ctx, feed.Event{Type: feed.EventUpdate, Table: feed.TableProduct, Old: old, New: updated})
	s.record(ctx, actorID, "product.update", id, map[string]any{"old_price": old.CurrentPrice, "new_price": updated.CurrentPrice})
	return updated, nil
}

// Delete removes a product and announces the deletion.
func (s *Service) Delete(ctx context.Context, actorID string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", httpx.ErrValidation)
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, feed.Event{Type: feed.EventDelete, Table: feed.TableProduct, Old: deleted})
	s.record(ctx, actorID, "product.delete", id, nil)
	return nil
}

func (s *Service) publish(ctx context.Context, event feed.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("publish product event", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit product change", slog.Any("error", err))
	}
}
