package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartFixture(t *testing.T) (*CartService, *store.MemoryStore, *mockCache, int64) {
	t.Helper()
	uow := store.NewMemoryStore()
	c := newMockCache()
	return NewCartService(uow, c), uow, c, seedCustomer(t, uow, "alice@example.com")
}

func TestGetCart_CreatesEmptyActiveCart(t *testing.T) {
	svc, _, _, customer := newCartFixture(t)

	cart, err := svc.GetCart(context.Background(), customer)
	require.NoError(t, err)

	assert.Equal(t, customer, cart.CustomerID)
	assert.Equal(t, domain.CartStatusActive, cart.Status)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalPrice.IsZero())
	assert.Zero(t, cart.TotalQuantity)
}

func TestGetCart_ServedFromCacheUntilWrite(t *testing.T) {
	svc, uow, c, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "10.00", 5)
	ctx := context.Background()

	_, err := svc.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.True(t, c.cached(customer))

	_, err = svc.AddItem(ctx, customer, p.ID, 1)
	require.NoError(t, err)
	assert.False(t, c.cached(customer), "write must invalidate the cached view")

	cart, err := svc.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.TotalQuantity)
}

func TestGetCart_CacheErrorFallsBackToStore(t *testing.T) {
	svc, _, c, customer := newCartFixture(t)
	c.err = errors.New("redis down")

	cart, err := svc.GetCart(context.Background(), customer)
	require.NoError(t, err)
	assert.Equal(t, customer, cart.CustomerID)
}

// A write committed between GetCart's store read and its cache write must
// win: the older cart is dropped instead of overwriting the invalidation.
func TestGetCart_WriteDuringLoadIsNotOverwritten(t *testing.T) {
	svc, uow, c, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "10.00", 5)
	ctx := context.Background()

	c.beforeSet = func() {
		_, err := svc.AddItem(ctx, customer, p.ID, 2)
		require.NoError(t, err)
	}

	stale, err := svc.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Zero(t, stale.TotalQuantity, "the first read observed the cart before the write")
	assert.False(t, c.cached(customer), "the pre-write cart must not be cached")

	cart, err := svc.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.TotalQuantity)
	assert.Equal(t, "20.00", domain.FormatMoney(cart.TotalPrice))
	assert.True(t, c.cached(customer))
}

func TestGetOrCreateActiveCart_ConcurrentCallersShareOneCart(t *testing.T) {
	svc, _, _, customer := newCartFixture(t)

	const workers = 10
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cart, err := svc.GetOrCreateActiveCart(context.Background(), customer)
			if assert.NoError(t, err) {
				ids[i] = cart.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestAddItem_NewLineCapturesCurrentPrice(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "10.00", 5)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, customer, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "10.00", domain.FormatMoney(item.UnitPrice))

	setProduct(t, uow, p.ID, func(p *domain.Product) { p.Price = domain.MustMoney("12.00") })

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "10.00", domain.FormatMoney(cart.Items[0].UnitPrice))
	assert.Equal(t, "20.00", domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, 2, cart.TotalQuantity)
}

func TestAddItem_MergesIntoExistingLine(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "10.00", 5)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, customer, p.ID, 2)
	require.NoError(t, err)
	item, err := svc.AddItem(ctx, customer, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "30.00", domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, 3, cart.TotalQuantity)
}

func TestAddItem_InsufficientStockLeavesCartUnchanged(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "10.00", 3)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, customer, p.ID, 2)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, customer, p.ID, 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.TotalQuantity)
	assert.Equal(t, "20.00", domain.FormatMoney(cart.TotalPrice))
}

func TestCartScenario_AddUntilStockThenRemove(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-999", "9.99", 5)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, customer, p.ID, 2)
	require.NoError(t, err)
	cart, err := svc.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, "19.98", domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, 2, cart.TotalQuantity)

	_, err = svc.AddItem(ctx, customer, p.ID, 3)
	require.NoError(t, err)
	cart, err = svc.GetCart(ctx, customer)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, "49.95", domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, 5, cart.TotalQuantity)

	_, err = svc.AddItem(ctx, customer, p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	cart, err = svc.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, "49.95", domain.FormatMoney(cart.TotalPrice))

	require.NoError(t, svc.RemoveItem(ctx, customer, item.ID))
	cart, err = svc.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, "0.00", domain.FormatMoney(cart.TotalPrice))
	assert.Zero(t, cart.TotalQuantity)
}

func TestAddItem_Errors(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	inactive := seedProduct(t, uow, "SKU-OFF", "5.00", 10)
	setProduct(t, uow, inactive.ID, func(p *domain.Product) { p.Active = false })
	active := seedProduct(t, uow, "SKU-ON", "5.00", 10)

	tests := []struct {
		name      string
		productID int64
		qty       int
		want      error
	}{
		{"zero quantity", active.ID, 0, domain.ErrInvalidArgument},
		{"negative quantity", active.ID, -1, domain.ErrInvalidArgument},
		{"unknown product", 9999, 1, domain.ErrNotFound},
		{"inactive product", inactive.ID, 1, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(context.Background(), customer, tt.productID, tt.qty)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateItemQuantity(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "9.99", 10)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, customer, p.ID, 1)
	require.NoError(t, err)

	updated, err := svc.UpdateItemQuantity(ctx, customer, item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, "49.95", domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, 5, cart.TotalQuantity)
}

func TestUpdateItemQuantity_SameQuantityKeepsTotals(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "2.50", 10)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, customer, p.ID, 4)
	require.NoError(t, err)

	_, err = svc.UpdateItemQuantity(ctx, customer, item.ID, 4)
	require.NoError(t, err)

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, "10.00", domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, 4, cart.TotalQuantity)
}

func TestUpdateItemQuantity_Errors(t *testing.T) {
	svc, uow, _, alice := newCartFixture(t)
	bob := seedCustomer(t, uow, "bob@example.com")
	p := seedProduct(t, uow, "SKU-1", "1.00", 3)
	ctx := context.Background()

	aliceItem, err := svc.AddItem(ctx, alice, p.ID, 1)
	require.NoError(t, err)

	_, err = svc.UpdateItemQuantity(ctx, alice, aliceItem.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.UpdateItemQuantity(ctx, alice, aliceItem.ID, 4)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = svc.UpdateItemQuantity(ctx, bob, aliceItem.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.UpdateItemQuantity(ctx, alice, 424242, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveItem(t *testing.T) {
	svc, uow, _, alice := newCartFixture(t)
	bob := seedCustomer(t, uow, "bob@example.com")
	p1 := seedProduct(t, uow, "SKU-1", "1.50", 10)
	p2 := seedProduct(t, uow, "SKU-2", "2.25", 10)
	ctx := context.Background()

	first, err := svc.AddItem(ctx, alice, p1.ID, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, alice, p2.ID, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RemoveItem(ctx, bob, first.ID), domain.ErrForbidden)
	require.NoError(t, svc.RemoveItem(ctx, alice, first.ID))
	assert.ErrorIs(t, svc.RemoveItem(ctx, alice, first.ID), domain.ErrNotFound)

	cart, err := svc.GetOrCreateActiveCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, p2.ID, cart.Items[0].ProductID)
	assert.Equal(t, "2.25", domain.FormatMoney(cart.TotalPrice))
	assert.Equal(t, 1, cart.TotalQuantity)
}

func TestClear(t *testing.T) {
	svc, uow, c, customer := newCartFixture(t)
	p := seedProduct(t, uow, "SKU-1", "3.00", 10)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, customer, p.ID, 3)
	require.NoError(t, err)
	before := c.invalidations

	require.NoError(t, svc.Clear(ctx, customer))
	assert.Greater(t, c.invalidations, before)

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalPrice.IsZero())
	assert.Zero(t, cart.TotalQuantity)
	assert.Equal(t, domain.CartStatusActive, cart.Status)
}

func TestClear_EmptyCartIsNoop(t *testing.T) {
	svc, _, _, customer := newCartFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Clear(ctx, customer), "clearing a missing cart")

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, customer))

	again, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, cart.Version, again.Version)
}

func TestCartTotalsAlwaysMatchLines(t *testing.T) {
	svc, uow, _, customer := newCartFixture(t)
	a := seedProduct(t, uow, "SKU-A", "0.10", 100)
	b := seedProduct(t, uow, "SKU-B", "19.99", 100)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := svc.AddItem(ctx, customer, a.ID, 3); return err },
		func() error { _, err := svc.AddItem(ctx, customer, b.ID, 2); return err },
		func() error { _, err := svc.AddItem(ctx, customer, a.ID, 7); return err },
		func() error { _, err := svc.AddItem(ctx, customer, b.ID, 500); return err },
	}
	for _, step := range steps {
		_ = step()

		cart, err := svc.GetOrCreateActiveCart(ctx, customer)
		require.NoError(t, err)
		total, qty := domain.RecomputeTotals(cart.Items)
		assert.True(t, total.Equal(cart.TotalPrice), "total %s != %s", cart.TotalPrice, total)
		assert.Equal(t, qty, cart.TotalQuantity)
	}

	cart, err := svc.GetOrCreateActiveCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, "40.98", domain.FormatMoney(cart.TotalPrice))
}
