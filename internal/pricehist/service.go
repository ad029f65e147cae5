package pricehist

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

// Service handles price history business logic.
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

// ListByProduct returns price points for a product, newest first.
func (s *Service) ListByProduct(ctx context.Context, productID int64, limit int) ([]PricePoint, error) {
	if productID <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", httpx.ErrValidation)
	}
	return s.repo.ListByProduct(ctx, productID, limit)
}

// Add records a new price point.
func (s *Service) Add(ctx context.Context, actorID string, point PricePoint) (PricePoint, error) {
	if point.ProductID <= 0 {
		return PricePoint{}, fmt.Errorf("%w: invalid product id", httpx.ErrValidation)
	}
	if point.Price < 0 {
		return PricePoint{}, fmt.Errorf("%w: price cannot be negative", httpx.ErrValidation)
	}
	created, err := s.repo.Create(ctx, point)
	if err != nil {
		return PricePoint{}, err
	}
	s.publish(ctx, feed.Event{Type: feed.EventInsert, Table: feed.TablePriceHist, New: created})
	s.record(ctx, actorID, "pricehist.add", created.ID, map[string]any{"product_id": created.ProductID, "price": created.Price})
	return created, nil
}

// Edit changes a recorded price point.
func (s *Service) Edit(ctx context.Context, actorID string, id int64, price float64, note string) (PricePoint, error) {
	if id <= 0 {
		return PricePoint{}, fmt.Errorf("%w: invalid price point id", httpx.ErrValidation)
	}
	if price < 0 {
		return PricePoint{}, fmt.Errorf("%w: price cannot be negative", httpx.ErrValidation)
	}
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return PricePoint{}, err
	}
	updated, err := s.repo.Update(ctx, id, price, note)
	if err != nil {
		return PricePoint{}, err
	}
	s.publish(ctx, feed.Event{Type: feed.EventUpdate, Table: feed.TablePriceHist, Old: old, New: updated})
	s.record(ctx, actorID, "pricehist.edit", id, map[string]any{"old_price": old.Price, "new_price": price})
	return updated, nil
}

// Remove deletes a price point.
func (s *Service) Remove(ctx context.Context, actorID string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid price point id", httpx.ErrValidation)
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, feed.Event{Type: feed.EventDelete, Table: feed.TablePriceHist, Old: deleted})
	s.record(ctx, actorID, "pricehist.delete", id, map[string]any{"product_id": deleted.ProductID})
	return nil
}

// SnapshotDaily records the current price of every active product missing a
// point for the given day.
func (s *Service) SnapshotDaily(ctx context.Context, day time.Time) (int64, error) {
	return s.repo.SnapshotDaily(ctx, day)
}

func (s *Service) publish(ctx context.Context, event feed.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("publish price event", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "pricehist",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit price change", slog.Any("error", err))
	}
}
