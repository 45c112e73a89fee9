package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/go_cart/storefront-service/internal/cache"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	m             sync.Mutex
	carts         map[int64]*domain.Cart
	gens          map[int64]int64
	err           error
	gets          int
	invalidations int

	// beforeSet runs once, outside the lock, between the caller's store read
	// and the generation check, to interleave a concurrent writer.
	beforeSet func()
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[int64]*domain.Cart), gens: make(map[int64]int64)}
}

func (c *mockCache) Get(_ context.Context, customerID int64) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.gets++
	if c.err != nil {
		return nil, c.err
	}
	cart, ok := c.carts[customerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (c *mockCache) Generation(_ context.Context, customerID int64) (int64, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.gens[customerID], nil
}

func (c *mockCache) Set(_ context.Context, customerID int64, cart *domain.Cart, generation int64) error {
	c.m.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.m.Unlock()
	if hook != nil {
		hook()
	}

	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.gens[customerID] != generation {
		return cache.ErrStaleWrite
	}
	c.carts[customerID] = cart
	return nil
}

func (c *mockCache) Invalidate(_ context.Context, customerID int64) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.invalidations++
	c.gens[customerID]++
	delete(c.carts, customerID)
	return c.err
}

func (c *mockCache) cached(customerID int64) bool {
	c.m.Lock()
	defer c.m.Unlock()
	_, ok := c.carts[customerID]
	return ok
}

func seedProduct(t *testing.T, uow repository.UnitOfWork, sku, price string, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{SKU: sku, Name: "Product " + sku, Price: domain.MustMoney(price), Stock: stock, Active: true}
	require.NoError(t, repository.RunInTx(context.Background(), uow, func(tx repository.Tx) error {
		return tx.Products().Create(context.Background(), p)
	}))
	return p
}

func seedCustomer(t *testing.T, uow repository.UnitOfWork, email string) int64 {
	t.Helper()
	var customerID int64
	require.NoError(t, repository.RunInTx(context.Background(), uow, func(tx repository.Tx) error {
		user := &domain.User{Email: email, PasswordHash: "x", FullName: email, Active: true}
		if err := tx.Identity().CreateUser(context.Background(), user); err != nil {
			return err
		}
		c := &domain.Customer{UserID: user.ID, Email: email, FullName: email}
		if err := tx.Identity().CreateCustomer(context.Background(), c); err != nil {
			return err
		}
		customerID = c.ID
		return nil
	}))
	return customerID
}

func setProduct(t *testing.T, uow repository.UnitOfWork, id int64, mutate func(p *domain.Product)) {
	t.Helper()
	require.NoError(t, repository.RunInTx(context.Background(), uow, func(tx repository.Tx) error {
		p, err := tx.Products().GetByID(context.Background(), id)
		if err != nil {
			return err
		}
		mutate(p)
		return tx.Products().Update(context.Background(), p)
	}))
}

func stockOf(t *testing.T, uow repository.UnitOfWork, id int64) int {
	t.Helper()
	var stock int
	require.NoError(t, repository.RunInTx(context.Background(), uow, func(tx repository.Tx) error {
		p, err := tx.Products().GetByID(context.Background(), id)
		if err != nil {
			return err
		}
		stock = p.Stock
		return nil
	}))
	return stock
}

func unpublished(t *testing.T, uow repository.UnitOfWork) []domain.OutboxEvent {
	t.Helper()
	var events []domain.OutboxEvent
	require.NoError(t, repository.RunInTx(context.Background(), uow, func(tx repository.Tx) error {
		var err error
		events, err = tx.Outbox().ListUnpublished(context.Background(), 100)
		return err
	}))
	return events
}
