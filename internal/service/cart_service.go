package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/cache"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	"golang.org/x/sync/singleflight"
)

const cacheOpTimeout = time.Second

type CartService struct {
	uow   repository.UnitOfWork
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(uow repository.UnitOfWork, c cache.CartCache) *CartService {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &CartService{
		uow:   uow,
		cache: c,
	}
}

// GetCart returns the customer's active cart, creating an empty one on first
// use. Reads go through the cache; every write invalidates it.
func (s *CartService) GetCart(ctx context.Context, customerID int64) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(strconv.FormatInt(customerID, 10), func() (any, error) {
		cart, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.WarnContext(ctx, "cache get error", "customer_id", customerID, "error", err)
		}

		// the generation must be read before the store so that a commit
		// landing after our read is seen by Set as a newer generation
		gen, genErr := s.cache.Generation(ctx, customerID)
		if genErr != nil {
			slog.WarnContext(ctx, "cache generation error", "customer_id", customerID, "error", genErr)
		}

		cart, err = s.GetOrCreateActiveCart(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if genErr != nil {
			return cart, nil
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, customerID, cart, gen); err != nil {
			if errors.Is(err, cache.ErrStaleWrite) {
				slog.DebugContext(ctx, "cart changed while loading, not cached", "customer_id", customerID)
			} else {
				slog.WarnContext(ctx, "cache set error", "customer_id", customerID, "error", err)
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// GetOrCreateActiveCart bypasses the cache. Concurrent first calls for one
// customer all observe the same cart.
func (s *CartService) GetOrCreateActiveCart(ctx context.Context, customerID int64) (*domain.Cart, error) {
	var cart *domain.Cart
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		cart, err = tx.Carts().GetActive(ctx, customerID)
		if errors.Is(err, domain.ErrNotFound) {
			cart, err = tx.Carts().CreateActive(ctx, customerID)
		}
		return err
	})
	if err != nil {
		logUnexpected(ctx, "get active cart failed", err, "customer_id", customerID)
		return nil, err
	}
	return cart, nil
}

// AddItem merges qty into the existing line for productID or creates a new
// line priced at the product's current price.
func (s *CartService) AddItem(ctx context.Context, customerID, productID int64, qty int) (*domain.CartItem, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return nil, err
	}

	var result domain.CartItem
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		cart, err := lockOrCreateActive(ctx, tx, customerID)
		if err != nil {
			return err
		}

		product, err := tx.Products().GetByID(ctx, productID)
		if err != nil {
			return err
		}

		existing, found := cart.FindProduct(productID)
		want := qty
		if found {
			want += existing.Quantity
		}
		if err := checkPurchasable(product, want); err != nil {
			return err
		}

		if found {
			if err := tx.Carts().UpdateItemQuantity(ctx, existing.ID, want); err != nil {
				return err
			}
			existing.Quantity = want
			result = existing
		} else {
			item := domain.CartItem{
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  qty,
				UnitPrice: domain.RoundMoney(product.Price),
			}
			if err := tx.Carts().InsertItem(ctx, &item); err != nil {
				return err
			}
			result = item
		}

		return recomputeCart(ctx, tx, cart)
	})
	if err != nil {
		logUnexpected(ctx, "add item failed", err, "customer_id", customerID, "product_id", productID)
		return nil, err
	}

	s.invalidateCache(customerID)
	return &result, nil
}

// UpdateItemQuantity sets the quantity of one line of the caller's active
// cart. Setting the current quantity again only refreshes the totals.
func (s *CartService) UpdateItemQuantity(ctx context.Context, customerID, itemID int64, qty int) (*domain.CartItem, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return nil, err
	}

	var result domain.CartItem
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		cart, item, err := lockOwnedItem(ctx, tx, customerID, itemID)
		if err != nil {
			return err
		}

		if item.Quantity != qty {
			product, err := tx.Products().GetByID(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if err := checkPurchasable(product, qty); err != nil {
				return err
			}
			if err := tx.Carts().UpdateItemQuantity(ctx, item.ID, qty); err != nil {
				return err
			}
			item.Quantity = qty
		}
		result = item

		return recomputeCart(ctx, tx, cart)
	})
	if err != nil {
		logUnexpected(ctx, "update item quantity failed", err, "customer_id", customerID, "item_id", itemID)
		return nil, err
	}

	s.invalidateCache(customerID)
	return &result, nil
}

func (s *CartService) RemoveItem(ctx context.Context, customerID, itemID int64) error {
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		cart, item, err := lockOwnedItem(ctx, tx, customerID, itemID)
		if err != nil {
			return err
		}
		if err := tx.Carts().DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		return recomputeCart(ctx, tx, cart)
	})
	if err != nil {
		logUnexpected(ctx, "remove item failed", err, "customer_id", customerID, "item_id", itemID)
		return err
	}

	s.invalidateCache(customerID)
	return nil
}

// Clear empties the active cart. Clearing a cart that is already empty, or
// that does not exist yet, changes nothing.
func (s *CartService) Clear(ctx context.Context, customerID int64) error {
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		cart, err := tx.Carts().LockActive(ctx, customerID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cart.IsEmpty() && cart.TotalQuantity == 0 && cart.TotalPrice.IsZero() {
			return nil
		}
		if err := tx.Carts().DeleteItems(ctx, cart.ID); err != nil {
			return err
		}
		cart.ApplyTotals(nil)
		return tx.Carts().Update(ctx, cart)
	})
	if err != nil {
		logUnexpected(ctx, "clear cart failed", err, "customer_id", customerID)
		return err
	}

	s.invalidateCache(customerID)
	return nil
}

func (s *CartService) invalidateCache(customerID int64) {
	invalidateCart(s.cache, customerID)
}

func invalidateCart(c cache.CartCache, customerID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := c.Invalidate(ctx, customerID); err != nil {
		slog.Warn("cache invalidate error", "customer_id", customerID, "error", err)
	}
}

// lockOrCreateActive returns the customer's active cart locked for the rest
// of the transaction.
func lockOrCreateActive(ctx context.Context, tx repository.Tx, customerID int64) (*domain.Cart, error) {
	cart, err := tx.Carts().LockActive(ctx, customerID)
	if !errors.Is(err, domain.ErrNotFound) {
		return cart, err
	}
	if _, err := tx.Carts().CreateActive(ctx, customerID); err != nil {
		return nil, err
	}
	return tx.Carts().LockActive(ctx, customerID)
}

// lockOwnedItem resolves a line item to its cart. Ownership is checked before
// the cart row is locked so a foreign item never blocks its owner.
func lockOwnedItem(ctx context.Context, tx repository.Tx, customerID, itemID int64) (*domain.Cart, domain.CartItem, error) {
	found, err := tx.Carts().FindItem(ctx, itemID)
	if err != nil {
		return nil, domain.CartItem{}, err
	}

	owner, err := tx.Carts().GetByID(ctx, found.CartID)
	if err != nil {
		return nil, domain.CartItem{}, err
	}
	if owner.CustomerID != customerID {
		return nil, domain.CartItem{}, fmt.Errorf("%w: cart item %d belongs to another customer", domain.ErrForbidden, itemID)
	}

	cart, err := tx.Carts().LockByID(ctx, found.CartID)
	if err != nil {
		return nil, domain.CartItem{}, err
	}
	if cart.Status != domain.CartStatusActive {
		return nil, domain.CartItem{}, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	item, ok := cart.FindItem(itemID)
	if !ok {
		return nil, domain.CartItem{}, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	return cart, item, nil
}

func checkPurchasable(p *domain.Product, qty int) error {
	if !p.Active {
		return fmt.Errorf("product %d: %w", p.ID, domain.ErrNotFound)
	}
	if p.Stock < qty {
		return fmt.Errorf("%w: product %d has %d available, %d requested", domain.ErrInsufficientStock, p.ID, p.Stock, qty)
	}
	return nil
}

// recomputeCart reloads every line and persists totals folded from scratch.
func recomputeCart(ctx context.Context, tx repository.Tx, cart *domain.Cart) error {
	items, err := tx.Carts().ListItems(ctx, cart.ID)
	if err != nil {
		return err
	}
	cart.ApplyTotals(items)
	return tx.Carts().Update(ctx, cart)
}
