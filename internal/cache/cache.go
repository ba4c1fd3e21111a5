package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// CartCache stores resolved carts keyed by domain.Identity.Key().
//
// Every owner has a generation counter. Get reports the generation it saw,
// even on a miss, and Set only stores a cart read under that generation.
// Delete advances the counter, so a cart loaded before an invalidation can
// never be written back after it.
type CartCache interface {
	Get(ctx context.Context, owner string) (*domain.Cart, uint64, error)
	Set(ctx context.Context, owner string, generation uint64, cart *domain.Cart) error
	Delete(ctx context.Context, owner string) error
}

var (
	ErrCacheMiss       = errors.New("cache miss")
	ErrStaleGeneration = errors.New("cart generation changed")
)

// NoopCache always misses; used when Redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.Cart, uint64, error) {
	return nil, 0, ErrCacheMiss
}

func (NoopCache) Set(context.Context, string, uint64, *domain.Cart) error {
	return nil
}

func (NoopCache) Delete(context.Context, string) error {
	return nil
}
