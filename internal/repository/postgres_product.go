package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

const productColumns = `id, sku, name, description, category_id, price, stock, active, created_at, updated_at`

type pgProductRepository struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var categoryID sql.NullInt64
	if err := row.Scan(
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&categoryID,
		&p.Price,
		&p.Stock,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		id := categoryID.Int64
		p.CategoryID = &id
	}
	return &p, nil
}

func (r *pgProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %q: %w", sku, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product by sku: %w", err)
	}
	return p, nil
}

func (r *pgProductRepository) List(ctx context.Context, filter ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
	          WHERE ($1::BIGINT IS NULL OR category_id = $1) AND ($2 OR active)
	            AND ($5 = '' OR strpos(lower(name), lower($5)) > 0 OR strpos(lower(description), lower($5)) > 0)
	          ORDER BY id LIMIT $3 OFFSET $4`

	var category sql.NullInt64
	if filter.CategoryID != nil {
		category = sql.NullInt64{Int64: *filter.CategoryID, Valid: true}
	}

	rows, err := r.q.QueryContext(ctx, query, category, filter.IncludeInactive, limitOrDefault(filter.Limit), filter.Offset, filter.Query)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (r *pgProductRepository) Create(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (sku, name, description, category_id, price, stock, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	err := r.q.QueryRowContext(ctx, query, p.SKU, p.Name, p.Description, p.CategoryID, p.Price, p.Stock, p.Active).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sku %q already exists: %w", p.SKU, domain.ErrConflict)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *pgProductRepository) Update(ctx context.Context, p *domain.Product) error {
	query := `UPDATE products
	          SET sku = $1, name = $2, description = $3, category_id = $4, price = $5, stock = $6, active = $7, updated_at = NOW()
	          WHERE id = $8
	          RETURNING updated_at`

	err := r.q.QueryRowContext(ctx, query, p.SKU, p.Name, p.Description, p.CategoryID, p.Price, p.Stock, p.Active, p.ID).
		Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", p.ID, domain.ErrNotFound)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sku %q already exists: %w", p.SKU, domain.ErrConflict)
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepository) DecrementStock(ctx context.Context, id int64, qty int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1 AND active`, qty, id)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", id, domain.ErrInsufficientStock)
	}
	return nil
}

func (r *pgProductRepository) IncrementStock(ctx context.Context, id int64, qty int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2`, qty, id)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return expectOneRow(res, "product")
}

func (r *pgProductRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}
