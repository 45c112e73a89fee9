package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

// CartCache holds read views of a customer's active cart.
//
// Every customer has a generation counter that Invalidate bumps. A reader
// takes the generation before loading the cart from the store and hands it
// to Set; Set refuses to write when an invalidation happened in between, so
// a slow reader can never put back a cart older than the last commit.
type CartCache interface {
	Get(ctx context.Context, customerID int64) (*domain.Cart, error)
	Generation(ctx context.Context, customerID int64) (int64, error)
	Set(ctx context.Context, customerID int64, cart *domain.Cart, generation int64) error
	Invalidate(ctx context.Context, customerID int64) error
}

var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrStaleWrite = errors.New("cart cache generation changed")
)

// NoopCache never stores anything; every Get is a miss.
type NoopCache struct{}

func (NoopCache) Get(context.Context, int64) (*domain.Cart, error)      { return nil, ErrCacheMiss }
func (NoopCache) Generation(context.Context, int64) (int64, error)      { return 0, nil }
func (NoopCache) Set(context.Context, int64, *domain.Cart, int64) error { return nil }
func (NoopCache) Invalidate(context.Context, int64) error               { return nil }
