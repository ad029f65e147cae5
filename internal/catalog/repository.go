package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewatch/pricewatch/internal/platform/httpx"
)

// Repository persists products in the product table.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) (Product, error)
	Delete(ctx context.Context, id int64) (Product, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, code, name, url, current_price, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where := ` FROM product WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}

	query := `SELECT ` + productColumns + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.URL, &p.CurrentPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("catalog: scan: %w", err)
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM product WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.URL, &p.CurrentPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, httpx.ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get: %w", err)
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO product (code, name, url, current_price, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`,
		product.Code, product.Name, product.URL, product.CurrentPrice, product.IsActive, now).
		Scan(&product.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, fmt.Errorf("%w: product code %s", httpx.ErrDuplicate, product.Code)
		}
		return Product{}, fmt.Errorf("catalog: create: %w", err)
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, id int64, product Product) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx,
		`UPDATE product SET code = $1, name = $2, url = $3, current_price = $4, is_active = $5, updated_at = NOW()
		 WHERE id = $6 RETURNING `+productColumns,
		product.Code, product.Name, product.URL, product.CurrentPrice, product.IsActive, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.URL, &p.CurrentPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, httpx.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, fmt.Errorf("%w: product code %s", httpx.ErrDuplicate, product.Code)
		}
		return Product{}, fmt.Errorf("catalog: update: %w", err)
	}
	return p, nil
}

func (r *repository) Delete(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `DELETE FROM product WHERE id = $1 RETURNING `+productColumns, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.URL, &p.CurrentPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, httpx.ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: delete: %w", err)
	}
	return p, nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "price":
		return "current_price " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
