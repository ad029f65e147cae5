package pricehist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	_ "github.com/pricewatch/pricewatch/testing"
)

type memoryRepo struct {
	mu     sync.Mutex
	points map[int64]PricePoint
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{points: make(map[int64]PricePoint)}
}

func (r *memoryRepo) ListByProduct(ctx context.Context, productID int64, limit int) ([]PricePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PricePoint
	for _, p := range r.points {
		if p.ProductID == productID {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (PricePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.points[id]; ok {
		return p, nil
	}
	return PricePoint{}, httpx.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, point PricePoint) (PricePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	point.ID = r.nextID
	if point.RecordedAt.IsZero() {
		point.RecordedAt = time.Now()
	}
	r.points[point.ID] = point
	return point, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, price float64, note string) (PricePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.points[id]
	if !ok {
		return PricePoint{}, httpx.ErrNotFound
	}
	p.Price = price
	p.Note = note
	r.points[id] = p
	return p, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) (PricePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.points[id]
	if !ok {
		return PricePoint{}, httpx.ErrNotFound
	}
	delete(r.points, id)
	return p, nil
}

func (r *memoryRepo) SnapshotDaily(ctx context.Context, day time.Time) (int64, error) {
	return 0, nil
}

var _ Repository = (*memoryRepo)(nil)

type memoryPublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *memoryPublisher) Publish(ctx context.Context, event feed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memoryPublisher) list() []feed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]feed.Event(nil), p.events...)
}

func TestAddPublishesInsertEvent(t *testing.T) {
	pub := &memoryPublisher{}
	svc := NewService(newMemoryRepo(), pub, nil, nil)

	created, err := svc.Add(context.Background(), "actor", PricePoint{ProductID: 7, Price: 42.5})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
	require.False(t, created.RecordedAt.IsZero())

	events := pub.list()
	require.Len(t, events, 1)
	require.Equal(t, feed.EventInsert, events[0].Type)
	require.Equal(t, feed.TablePriceHist, events[0].Table)
}

func TestAddRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Add(ctx, "actor", PricePoint{ProductID: 0, Price: 1})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Add(ctx, "actor", PricePoint{ProductID: 7, Price: -1})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestEditCarriesOldPrice(t *testing.T) {
	repo := newMemoryRepo()
	pub := &memoryPublisher{}
	svc := NewService(repo, pub, nil, nil)
	ctx := context.Background()

	created, err := svc.Add(ctx, "actor", PricePoint{ProductID: 7, Price: 10})
	require.NoError(t, err)

	updated, err := svc.Edit(ctx, "actor", created.ID, 12, "correction")
	require.NoError(t, err)
	require.InDelta(t, 12.0, updated.Price, 0.0001)

	events := pub.list()
	require.Len(t, events, 2)
	old, ok := events[1].Old.(PricePoint)
	require.True(t, ok)
	require.InDelta(t, 10.0, old.Price, 0.0001)
}

func TestRemoveUnknownPoint(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	err := svc.Remove(context.Background(), "actor", 99)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestListRejectsInvalidProduct(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.ListByProduct(context.Background(), 0, 10)
	require.ErrorIs(t, err, httpx.ErrValidation)
}
