package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
)

type OrderService struct {
	uow repository.UnitOfWork
}

func NewOrderService(uow repository.UnitOfWork) *OrderService {
	return &OrderService{uow: uow}
}

type OrderQuery struct {
	Status string
	// Query is an order number prefix, honoured for admin listings only.
	Query  string
	Limit  int
	Offset int
}

func (q OrderQuery) filter() (repository.OrderFilter, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return repository.OrderFilter{}, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidArgument)
	}
	f := repository.OrderFilter{Query: q.Query, Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status, err := domain.ParseOrderStatus(q.Status)
		if err != nil {
			return repository.OrderFilter{}, err
		}
		f.Status = &status
	}
	return f, nil
}

// ListOrders returns the customer's own orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, customerID int64, q OrderQuery) ([]domain.Order, error) {
	q.Query = ""
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	f.CustomerID = &customerID
	return s.list(ctx, f)
}

// GetOrder hides orders of other customers behind NotFound.
func (s *OrderService) GetOrder(ctx context.Context, customerID, orderID int64) (*domain.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context, q OrderQuery) ([]domain.Order, error) {
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	return s.list(ctx, f)
}

func (s *OrderService) AdminGetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.getOrder(ctx, orderID)
}

// UpdateOrderStatus moves an order along the lifecycle. Cancelling returns
// the ordered quantities to stock.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		current, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		from := current.Status
		if !from.CanTransitionTo(next) {
			return fmt.Errorf("%w: order %s cannot move from %s to %s", domain.ErrConflict, current.OrderNumber, from, next)
		}

		if next == domain.OrderStatusCancelled {
			for _, item := range current.Items {
				if err := tx.Products().IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		if err := tx.Orders().UpdateStatus(ctx, orderID, next); err != nil {
			return err
		}

		event := domain.OrderStatusChangedEvent{
			OrderID:     current.ID,
			OrderNumber: current.OrderNumber,
			CustomerID:  current.CustomerID,
			From:        from,
			To:          next,
			ChangedAt:   time.Now().UTC(),
		}
		if err := insertOrderEvent(ctx, tx, current.ID, domain.EventTypeOrderStatusChanged, event); err != nil {
			return err
		}

		order, err = tx.Orders().GetByID(ctx, orderID)
		return err
	})
	if err != nil {
		logUnexpected(ctx, "update order status failed", err, "order_id", orderID)
		return nil, err
	}

	slog.InfoContext(ctx, "order status changed", "order_id", orderID, "status", next.String())
	return order, nil
}

func (s *OrderService) Stats(ctx context.Context) (*domain.OrderStats, error) {
	var counts map[domain.OrderStatus]int64
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		counts, err = tx.Orders().CountByStatus(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	stats := &domain.OrderStats{ByStatus: make(map[domain.OrderStatus]int64, len(domain.AllOrderStatuses))}
	for _, status := range domain.AllOrderStatuses {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

func (s *OrderService) getOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order *domain.Order
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		order, err = tx.Orders().GetByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) list(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error) {
	var orders []domain.Order
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		orders, err = tx.Orders().List(ctx, f)
		return err
	})
	if err != nil {
		logUnexpected(ctx, "list orders failed", err)
		return nil, err
	}
	return orders, nil
}
