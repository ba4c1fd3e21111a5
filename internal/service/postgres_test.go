package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func newPostgresFixture(t *testing.T) *fixture {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := repository.NewPostgres(&repository.Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	})
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { store.Close() })

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

func TestPostgres_ConcurrentCreateOrderSameCart(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "PG-MUG", "10.00", 10)

	_, err := f.carts.AddItem(ctx, guest, v.ID, 2)
	require.NoError(t, err)

	const attempts = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		empty   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.CreateOrder(ctx, guest, CreateOrderInput{
				BillingAddress:  dhakaAddress(),
				ShippingAddress: dhakaAddress(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, domain.ErrEmptyCart):
				empty++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, empty)

	got, err := f.store.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)

	orders, err := f.store.ListOrdersByOwner(ctx, guest, 10, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPostgres_ConcurrentAddItemNewVariant(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "PG-CUP", "4.00", 20)

	const attempts = 5
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.carts.AddItem(ctx, guest, v.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := f.store.GetCartByOwner(ctx, guest)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, attempts, cart.Items[0].Quantity)
}
