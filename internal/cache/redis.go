package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

// generationTTL outlives any cart entry, so an expired counter can only
// restart from zero once nothing written under it is left.
const generationTTL = 24 * time.Hour

// entry is the stored value: the cart plus the generation it was read at.
type entry struct {
	Generation uint64       `json:"generation"`
	Cart       *domain.Cart `json:"cart"`
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

// Get returns the cached cart and the owner's current generation. An entry
// written under an older generation counts as a miss.
func (r *RedisCache) Get(ctx context.Context, owner string) (*domain.Cart, uint64, error) {
	vals, err := r.client.MGet(ctx, generationKey(owner), cacheKey(owner)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get failed: %w", err)
	}

	gen, err := parseGeneration(vals[0])
	if err != nil {
		return nil, 0, err
	}

	raw, ok := vals[1].(string)
	if !ok {
		return nil, gen, ErrCacheMiss
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, gen, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if e.Generation != gen || e.Cart == nil {
		return nil, gen, ErrCacheMiss
	}
	return e.Cart, gen, nil
}

// Set stores the cart with a 15-20 minute TTL when generation is still
// current, and returns ErrStaleGeneration otherwise. The counter is watched
// so a Delete racing the write aborts it.
func (r *RedisCache) Set(ctx context.Context, owner string, generation uint64, cart *domain.Cart) error {
	data, err := json.Marshal(entry{Generation: generation, Cart: cart})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	genKey := generationKey(owner)
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return ErrStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(owner), data, ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return ErrStaleGeneration
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

// Delete drops the entry and advances the generation.
func (r *RedisCache) Delete(ctx context.Context, owner string) error {
	genKey := generationKey(owner)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(owner))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func parseGeneration(v any) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cart generation %q: %w", s, err)
	}
	return gen, nil
}

func cacheKey(owner string) string {
	return "cart:" + owner
}

func generationKey(owner string) string {
	return "cart:" + owner + ":gen"
}
