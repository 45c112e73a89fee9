package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/lib/pq"
)

const orderColumns = `id, customer_id, order_number, status, total_amount, created_at, updated_at`

type pgOrderRepository struct {
	q querier
}

func (r *pgOrderRepository) Create(ctx context.Context, order *domain.Order) (bool, error) {
	query := `INSERT INTO orders (customer_id, order_number, status, total_amount, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, NOW(), NOW())
	          ON CONFLICT (order_number) DO NOTHING
	          RETURNING id, created_at, updated_at`

	err := r.q.QueryRowContext(ctx, query,
		order.CustomerID,
		order.OrderNumber,
		order.Status,
		order.TotalAmount,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal)
	              VALUES ($1, $2, $3, $4, $5, $6)
	              RETURNING id`
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := r.q.QueryRowContext(ctx, itemQuery,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
		).Scan(&item.ID); err != nil {
			return false, fmt.Errorf("insert order item: %w", err)
		}
	}
	return true, nil
}

func (r *pgOrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *pgOrderRepository) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgOrderRepository) load(ctx context.Context, query string, id int64) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	items, err := r.listItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *pgOrderRepository) List(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE ($1::BIGINT IS NULL OR customer_id = $1)
	            AND ($2::VARCHAR IS NULL OR status = $2)
	            AND ($3 = '' OR starts_with(order_number, $3))
	          ORDER BY created_at DESC, id DESC
	          LIMIT $4 OFFSET $5`

	var customer sql.NullInt64
	if filter.CustomerID != nil {
		customer = sql.NullInt64{Int64: *filter.CustomerID, Valid: true}
	}
	var status sql.NullString
	if filter.Status != nil {
		status = sql.NullString{String: string(*filter.Status), Valid: true}
	}

	rows, err := r.q.QueryContext(ctx, query, customer, status, filter.Query, limitOrDefault(filter.Limit), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := r.listItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// listItems loads the items of several orders in one query.
func (r *pgOrderRepository) listItems(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	query := `SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal
	          FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
		); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

func (r *pgOrderRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectOneRow(res, "order")
}

func (r *pgOrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int64)
	for rows.Next() {
		var status domain.OrderStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

func (r *pgOrderRepository) HasPurchased(ctx context.Context, customerID, productID int64) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM orders o JOIN order_items i ON i.order_id = o.id
	            WHERE o.customer_id = $1 AND i.product_id = $2 AND o.status <> 'CANCELLED')`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, customerID, productID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query purchase: %w", err)
	}
	return exists, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	if err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &order, nil
}
