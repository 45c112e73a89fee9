package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

const cartColumns = `id, customer_id, status, total_price, total_quantity, version, created_at, updated_at`

type pgCartRepository struct {
	q querier
}

func (r *pgCartRepository) GetActive(ctx context.Context, customerID int64) (*domain.Cart, error) {
	return r.loadCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE customer_id = $1 AND status = 'ACTIVE'`, customerID)
}

func (r *pgCartRepository) LockActive(ctx context.Context, customerID int64) (*domain.Cart, error) {
	return r.loadCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE customer_id = $1 AND status = 'ACTIVE' FOR UPDATE`, customerID)
}

func (r *pgCartRepository) GetByID(ctx context.Context, cartID int64) (*domain.Cart, error) {
	return r.loadCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID)
}

func (r *pgCartRepository) LockByID(ctx context.Context, cartID int64) (*domain.Cart, error) {
	return r.loadCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, cartID)
}

func (r *pgCartRepository) CreateActive(ctx context.Context, customerID int64) (*domain.Cart, error) {
	query := `INSERT INTO carts (customer_id, status, total_price, total_quantity, version, created_at, updated_at)
	          VALUES ($1, 'ACTIVE', 0, 0, 0, NOW(), NOW())
	          ON CONFLICT (customer_id) WHERE status = 'ACTIVE' DO NOTHING`

	if _, err := r.q.ExecContext(ctx, query, customerID); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	return r.GetActive(ctx, customerID)
}

func (r *pgCartRepository) loadCart(ctx context.Context, query string, arg int64) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&cart.ID,
		&cart.CustomerID,
		&cart.Status,
		&cart.TotalPrice,
		&cart.TotalQuantity,
		&cart.Version,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	items, err := r.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *pgCartRepository) ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	query := `SELECT id, cart_id, product_id, quantity, unit_price, created_at, updated_at
	          FROM cart_items WHERE cart_id = $1 ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *pgCartRepository) FindItem(ctx context.Context, itemID int64) (*domain.CartItem, error) {
	query := `SELECT id, cart_id, product_id, quantity, unit_price, created_at, updated_at
	          FROM cart_items WHERE id = $1`

	var item domain.CartItem
	err := r.q.QueryRowContext(ctx, query, itemID).Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.Quantity,
		&item.UnitPrice,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart item: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item: %w", err)
	}
	return &item, nil
}

func (r *pgCartRepository) InsertItem(ctx context.Context, item *domain.CartItem) error {
	query := `INSERT INTO cart_items (cart_id, product_id, quantity, unit_price, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	err := r.q.QueryRowContext(ctx, query, item.CartID, item.ProductID, item.Quantity, item.UnitPrice).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cart item for product %d: %w", item.ProductID, domain.ErrConflict)
		}
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepository) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2`, quantity, itemID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return expectOneRow(res, "cart item")
}

func (r *pgCartRepository) DeleteItem(ctx context.Context, itemID int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectOneRow(res, "cart item")
}

func (r *pgCartRepository) DeleteItems(ctx context.Context, cartID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}

func (r *pgCartRepository) Update(ctx context.Context, cart *domain.Cart) error {
	query := `UPDATE carts
	          SET status = $1, total_price = $2, total_quantity = $3, version = version + 1, updated_at = NOW()
	          WHERE id = $4 AND version = $5
	          RETURNING version, updated_at`

	err := r.q.QueryRowContext(ctx, query,
		cart.Status,
		cart.TotalPrice,
		cart.TotalQuantity,
		cart.ID,
		cart.Version,
	).Scan(&cart.Version, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("cart %d was modified concurrently: %w", cart.ID, domain.ErrConflict)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer already has an active cart: %w", domain.ErrConflict)
		}
		return fmt.Errorf("update cart: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
