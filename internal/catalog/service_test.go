package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	_ "github.com/pricewatch/pricewatch/testing"
)

type memoryRepo struct {
	mu       sync.Mutex
	products map[int64]Product
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		return p, nil
	}
	return Product{}, httpx.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.products {
		if existing.Code == p.Code {
			return Product{}, httpx.ErrDuplicate
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return Product{}, httpx.ErrNotFound
	}
	p.ID = id
	r.products[id] = p
	return p, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, httpx.ErrNotFound
	}
	delete(r.products, id)
	return p, nil
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

func TestCreateValidatesAndPublishes(t *testing.T) {
	pub := &memoryPublisher{}
	svc := NewService(newMemoryRepo(), pub, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "actor", Product{Code: "SKU-1", Name: "Widget", CurrentPrice: 19.99, IsActive: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)

	events := pub.list()
	require.Len(t, events, 1)
	require.Equal(t, feed.EventInsert, events[0].Type)
	require.Equal(t, feed.TableProduct, events[0].Table)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "actor", Product{Name: "No Code"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, "actor", Product{Code: "SKU-1"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, "actor", Product{Code: "SKU-1", Name: "Widget", CurrentPrice: -1})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "actor", Product{Code: "SKU-1", Name: "Widget"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "actor", Product{Code: "SKU-1", Name: "Widget Again"})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestUpdatePublishesOldAndNew(t *testing.T) {
	repo := newMemoryRepo()
	pub := &memoryPublisher{}
	svc := NewService(repo, pub, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "actor", Product{Code: "SKU-1", Name: "Widget", CurrentPrice: 10})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "actor", created.ID, Product{Code: "SKU-1", Name: "Widget", CurrentPrice: 12})
	require.NoError(t, err)
	require.InDelta(t, 12.0, updated.CurrentPrice, 0.0001)

	events := pub.list()
	require.Len(t, events, 2)
	require.Equal(t, feed.EventUpdate, events[1].Type)
	old, ok := events[1].Old.(Product)
	require.True(t, ok)
	require.InDelta(t, 10.0, old.CurrentPrice, 0.0001)
}

func TestDeleteUnknownProduct(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	err := svc.Delete(context.Background(), "actor", 42)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestGetFormatsPrice(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "actor", Product{Code: "SKU-1", Name: "Widget", CurrentPrice: 1234567.5})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "1,234,567.50", got.PriceDisplay)
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "0.00", FormatPrice(0))
	require.Equal(t, "1,000.00", FormatPrice(1000))
	require.Equal(t, "99.90", FormatPrice(99.9))
}
