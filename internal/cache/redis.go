package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// generationTTL outlives any cart entry so a counter never resets while a
// reader might still hold an older value.
const generationTTL = 24 * time.Hour

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, customerID int64) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

// Generation returns the customer's invalidation counter; a missing counter is 0.
func (r *RedisCache) Generation(ctx context.Context, customerID int64) (int64, error) {
	gen, err := readGeneration(ctx, r.client, customerID)
	if err != nil {
		return 0, fmt.Errorf("redis generation failed: %w", err)
	}
	return gen, nil
}

// Set stores the cart only if the generation is still the one the caller
// observed before loading it. The check and the write run under WATCH, so an
// Invalidate landing between them aborts the write with ErrStaleWrite.
func (r *RedisCache) Set(ctx context.Context, customerID int64, cart *domain.Cart, generation int64) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// jitter spreads expiry so carts cached together do not expire together
	jitter := time.Duration(rand.Intn(5)) * time.Minute

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if current != generation {
			return ErrStaleWrite
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(customerID), jsonCart, r.baseTTL+jitter)
			return nil
		})
		return err
	}, generationKey(customerID))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleWrite), errors.Is(err, redis.TxFailedErr):
		return ErrStaleWrite
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

// Invalidate bumps the generation and drops the cached cart in one MULTI.
func (r *RedisCache) Invalidate(ctx context.Context, customerID int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(customerID))
		pipe.Expire(ctx, generationKey(customerID), generationTTL)
		pipe.Del(ctx, cacheKey(customerID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// readGeneration works on both the client and a WATCH transaction.
func readGeneration(ctx context.Context, c getter, customerID int64) (int64, error) {
	gen, err := c.Get(ctx, generationKey(customerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func cacheKey(customerID int64) string {
	return fmt.Sprintf("cart:%d", customerID)
}

func generationKey(customerID int64) string {
	return fmt.Sprintf("cart:%d:gen", customerID)
}
