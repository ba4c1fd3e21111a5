package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	gens    map[string]uint64
	hits    int
	deletes []string
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart), gens: make(map[string]uint64)}
}

func (c *mockCache) Get(_ context.Context, owner string) (*domain.Cart, uint64, error) {
	c.m.Lock()
	defer c.m.Unlock()
	cart, ok := c.carts[owner]
	if !ok {
		return nil, c.gens[owner], cache.ErrCacheMiss
	}
	c.hits++
	return cart, c.gens[owner], nil
}

func (c *mockCache) Set(_ context.Context, owner string, gen uint64, cart *domain.Cart) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.gens[owner] != gen {
		return cache.ErrStaleGeneration
	}
	c.carts[owner] = cart
	return nil
}

func (c *mockCache) Delete(_ context.Context, owner string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.carts, owner)
	c.gens[owner]++
	c.deletes = append(c.deletes, owner)
	return nil
}

func (c *mockCache) cached(owner string) bool {
	c.m.RLock()
	defer c.m.RUnlock()
	_, ok := c.carts[owner]
	return ok
}

func setupStore(t *testing.T) *repository.Store {
	t.Helper()

	store, err := repository.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())

	t.Cleanup(func() { store.Close() })
	return store
}

type fixture struct {
	store   *repository.Store
	cache   *mockCache
	carts   *CartService
	orders  *OrderService
	address *AddressService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := setupStore(t)
	mc := newMockCache()
	carts := NewCartService(store, mc, zap.NewNop())
	return &fixture{
		store:   store,
		cache:   mc,
		carts:   carts,
		orders:  NewOrderService(store, carts, DefaultShippingRates(), zap.NewNop()),
		address: NewAddressService(store),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedVariant(t *testing.T, store *repository.Store, sku, price string, stock int) *domain.Variant {
	t.Helper()
	ctx := context.Background()

	p := &domain.Product{Title: "Product " + sku, Slug: "product-" + sku, IsActive: true}
	require.NoError(t, store.CreateProduct(ctx, p))

	v := &domain.Variant{ProductID: p.ID, ProductTitle: p.Title, SKU: sku, Attributes: "Black", Price: dec(price), Stock: stock, IsActive: true}
	require.NoError(t, store.CreateVariant(ctx, v))
	return v
}

func dhakaAddress() *AddressInput {
	return &AddressInput{FullName: "Rahim Uddin", Phone: "01700000000", Street: "House 1, Road 2", City: "Dhaka"}
}
