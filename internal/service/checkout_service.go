package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/cache"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
)

const maxOrderNumberAttempts = 5

// CheckoutRequest is what the client believes it is buying. Items may be
// empty, in which case the cart contents are taken as they are.
type CheckoutRequest struct {
	DeclaredTotal decimal.Decimal
	Items         []CheckoutItem
}

type CheckoutItem struct {
	ProductID int64
	Quantity  int
	// UnitPrice is optional; when set it must match the price captured in
	// the cart.
	UnitPrice decimal.Decimal
}

type CheckoutService struct {
	uow     repository.UnitOfWork
	cache   cache.CartCache
	metrics *metrics.Metrics

	now    func() time.Time
	suffix func(n int) int
}

func NewCheckoutService(uow repository.UnitOfWork, c cache.CartCache, m *metrics.Metrics) *CheckoutService {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &CheckoutService{
		uow:     uow,
		cache:   c,
		metrics: m,
		now:     time.Now,
		suffix:  rand.IntN,
	}
}

// Checkout converts the active cart into a PENDING order. Stock decrements,
// order creation, the order.created outbox event and the cart conversion
// either all commit or none do.
func (s *CheckoutService) Checkout(ctx context.Context, customerID int64, req CheckoutRequest) (*domain.Order, error) {
	order, err := s.checkout(ctx, customerID, req)
	s.metrics.ObserveCheckout(checkoutOutcome(err))
	if err != nil {
		logUnexpected(ctx, "checkout failed", err, "customer_id", customerID)
		return nil, err
	}

	invalidateCart(s.cache, customerID)
	slog.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"customer_id", customerID,
		"total", domain.FormatMoney(order.TotalAmount),
	)
	return order, nil
}

func (s *CheckoutService) checkout(ctx context.Context, customerID int64, req CheckoutRequest) (*domain.Order, error) {
	if err := validateCheckoutRequest(req); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		cart, err := tx.Carts().LockActive(ctx, customerID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: cart is empty", domain.ErrInvalidArgument)
		}
		if err != nil {
			return err
		}

		products := make(map[int64]*domain.Product, len(cart.Items))
		for _, item := range req.Items {
			p, err := tx.Products().GetByID(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if !p.Active {
				return fmt.Errorf("product %d: %w", p.ID, domain.ErrNotFound)
			}
			products[p.ID] = p
		}

		if cart.IsEmpty() {
			return fmt.Errorf("%w: cart is empty", domain.ErrInvalidArgument)
		}
		if err := verifyAgainstCart(cart, req); err != nil {
			return err
		}

		order = &domain.Order{
			CustomerID:  customerID,
			Status:      domain.OrderStatusPending,
			TotalAmount: cart.TotalPrice,
			Items:       make([]domain.OrderItem, 0, len(cart.Items)),
		}
		for _, line := range cart.Items {
			p, ok := products[line.ProductID]
			if !ok {
				if p, err = tx.Products().GetByID(ctx, line.ProductID); err != nil {
					return err
				}
			}
			if !p.Active {
				return fmt.Errorf("product %d: %w", p.ID, domain.ErrNotFound)
			}
			if err := tx.Products().DecrementStock(ctx, p.ID, line.Quantity); err != nil {
				return err
			}
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Subtotal:    line.Subtotal(),
			})
		}

		if err := s.insertOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := insertOrderCreated(ctx, tx, order); err != nil {
			return err
		}

		if err := tx.Carts().DeleteItems(ctx, cart.ID); err != nil {
			return err
		}
		cart.ApplyTotals(nil)
		cart.Status = domain.CartStatusConverted
		return tx.Carts().Update(ctx, cart)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func validateCheckoutRequest(req CheckoutRequest) error {
	if !req.DeclaredTotal.IsPositive() {
		return fmt.Errorf("%w: declared total must be positive", domain.ErrInvalidArgument)
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: product id is required", domain.ErrInvalidArgument)
		}
		if err := domain.ValidateQuantity(item.Quantity); err != nil {
			return err
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: unit price must not be negative", domain.ErrInvalidArgument)
		}
	}
	return nil
}

// verifyAgainstCart rejects a request whose view of the cart is stale.
func verifyAgainstCart(cart *domain.Cart, req CheckoutRequest) error {
	if len(req.Items) > 0 {
		if len(req.Items) != len(cart.Items) {
			return fmt.Errorf("%w: cart has %d lines, request has %d", domain.ErrConflict, len(cart.Items), len(req.Items))
		}
		seen := make(map[int64]bool, len(req.Items))
		for _, item := range req.Items {
			line, ok := cart.FindProduct(item.ProductID)
			if !ok || seen[item.ProductID] {
				return fmt.Errorf("%w: product %d does not match the cart", domain.ErrConflict, item.ProductID)
			}
			seen[item.ProductID] = true
			if line.Quantity != item.Quantity {
				return fmt.Errorf("%w: product %d quantity is %d in the cart", domain.ErrConflict, item.ProductID, line.Quantity)
			}
			if !item.UnitPrice.IsZero() && !domain.RoundMoney(item.UnitPrice).Equal(line.UnitPrice) {
				return fmt.Errorf("%w: product %d price is %s in the cart", domain.ErrConflict, item.ProductID, domain.FormatMoney(line.UnitPrice))
			}
		}
	}

	if !domain.RoundMoney(req.DeclaredTotal).Equal(cart.TotalPrice) {
		return fmt.Errorf("%w: declared total %s does not match cart total %s",
			domain.ErrConflict, domain.FormatMoney(req.DeclaredTotal), domain.FormatMoney(cart.TotalPrice))
	}
	return nil
}

// insertOrder allocates an order number, retrying on the rare collision.
func (s *CheckoutService) insertOrder(ctx context.Context, tx repository.Tx, order *domain.Order) error {
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = domain.NewOrderNumber(s.now(), s.suffix)
		inserted, err := tx.Orders().Create(ctx, order)
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
		slog.WarnContext(ctx, "order number collision", "order_number", order.OrderNumber, "attempt", attempt)
	}
	return fmt.Errorf("could not allocate a unique order number after %d attempts", maxOrderNumberAttempts)
}

func insertOrderCreated(ctx context.Context, tx repository.Tx, order *domain.Order) error {
	return insertOrderEvent(ctx, tx, order.ID, domain.EventTypeOrderCreated, domain.NewOrderCreatedEvent(order))
}

func insertOrderEvent(ctx context.Context, tx repository.Tx, orderID int64, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return tx.Outbox().Insert(ctx, &domain.OutboxEvent{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateOrder,
		AggregateID:   strconv.FormatInt(orderID, 10),
		EventType:     eventType,
		Payload:       body,
	})
}

func checkoutOutcome(err error) string {
	switch domain.Code(err) {
	case codes.OK:
		return "success"
	case codes.InvalidArgument:
		return "invalid_argument"
	case codes.NotFound:
		return "not_found"
	case codes.FailedPrecondition:
		return "insufficient_stock"
	case codes.Aborted:
		return "conflict"
	default:
		return "error"
	}
}
