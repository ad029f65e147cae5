package pricehist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewatch/pricewatch/internal/platform/httpx"
)

// Repository persists price points in the pricehist table.
type Repository interface {
	ListByProduct(ctx context.Context, productID int64, limit int) ([]PricePoint, error)
	Get(ctx context.Context, id int64) (PricePoint, error)
	Create(ctx context.Context, point PricePoint) (PricePoint, error)
	Update(ctx context.Context, id int64, price float64, note string) (PricePoint, error)
	Delete(ctx context.Context, id int64) (PricePoint, error)
	SnapshotDaily(ctx context.Context, day time.Time) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const pointColumns = `id, product_id, price, recorded_at, note, created_at, updated_at`

func (r *repository) ListByProduct(ctx context.Context, productID int64, limit int) ([]PricePoint, error) {
	query := `SELECT ` + pointColumns + ` FROM pricehist WHERE product_id = $1 ORDER BY recorded_at DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pricehist: list: %w", err)
	}
	defer rows.Close()
	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Price, &p.RecordedAt, &p.Note, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pricehist: scan: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (PricePoint, error) {
	var p PricePoint
	err := r.db.QueryRow(ctx, `SELECT `+pointColumns+` FROM pricehist WHERE id = $1`, id).
		Scan(&p.ID, &p.ProductID, &p.Price, &p.RecordedAt, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PricePoint{}, httpx.ErrNotFound
		}
		return PricePoint{}, fmt.Errorf("pricehist: get: %w", err)
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, point PricePoint) (PricePoint, error) {
	if point.RecordedAt.IsZero() {
		point.RecordedAt = time.Now()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO pricehist (product_id, price, recorded_at, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		point.ProductID, point.Price, point.RecordedAt, point.Note).
		Scan(&point.ID, &point.CreatedAt, &point.UpdatedAt)
	if err != nil {
		return PricePoint{}, fmt.Errorf("pricehist: create: %w", err)
	}
	return point, nil
}

func (r *repository) Update(ctx context.Context, id int64, price float64, note string) (PricePoint, error) {
	var p PricePoint
	err := r.db.QueryRow(ctx,
		`UPDATE pricehist SET price = $1, note = $2, updated_at = NOW() WHERE id = $3 RETURNING `+pointColumns,
		price, note, id).
		Scan(&p.ID, &p.ProductID, &p.Price, &p.RecordedAt, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PricePoint{}, httpx.ErrNotFound
		}
		return PricePoint{}, fmt.Errorf("pricehist: update: %w", err)
	}
	return p, nil
}

func (r *repository) Delete(ctx context.Context, id int64) (PricePoint, error) {
	var p PricePoint
	err := r.db.QueryRow(ctx, `DELETE FROM pricehist WHERE id = $1 RETURNING `+pointColumns, id).
		Scan(&p.ID, &p.ProductID, &p.Price, &p.RecordedAt, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PricePoint{}, httpx.ErrNotFound
		}
		return PricePoint{}, fmt.Errorf("pricehist: delete: %w", err)
	}
	return p, nil
}

// SnapshotDaily records the current price of every active product that has
// no point yet for the given day. Used by the nightly worker job.
func (r *repository) SnapshotDaily(ctx context.Context, day time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO pricehist (product_id, price, recorded_at, note, created_at, updated_at)
		 SELECT p.id, p.current_price, $1, 'daily snapshot', NOW(), NOW()
		 FROM product p
		 WHERE p.is_active
		   AND NOT EXISTS (
			SELECT 1 FROM pricehist h
			WHERE h.product_id = p.id AND h.recorded_at::date = $1::date
		 )`, day)
	if err != nil {
		return 0, fmt.Errorf("pricehist: snapshot: %w", err)
	}
	return tag.RowsAffected(), nil
}
