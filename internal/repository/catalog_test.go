package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVariant_ReturnsVariant(t *testing.T) {
	store := setupStore(t)
	v := seedVariant(t, store, "SKU-1", "10.00", 5)

	got, err := store.GetVariant(context.Background(), v.ID)
	require.NoError(t, err)

	assert.Equal(t, "SKU-1", got.SKU)
	assert.Equal(t, "Product SKU-1", got.ProductTitle)
	assert.True(t, got.Price.Equal(dec("10")))
	assert.Nil(t, got.SalePrice)
	assert.Equal(t, 5, got.Stock)
	assert.True(t, got.IsActive)
}

func TestGetVariant_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetVariant(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestCreateVariant_SalePriceRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := &domain.Product{Title: "Tee", Slug: "tee", IsActive: true}
	require.NoError(t, store.CreateProduct(ctx, p))

	sale := dec("7.50")
	v := &domain.Variant{ProductID: p.ID, SKU: "TEE-S", Price: dec("10.00"), SalePrice: &sale, Stock: 1, IsActive: true}
	require.NoError(t, store.CreateVariant(ctx, v))

	got, err := store.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SalePrice)
	assert.True(t, got.EffectivePrice().Equal(dec("7.5")))
}

func TestCreateVariant_DuplicateSKU(t *testing.T) {
	store := setupStore(t)
	v := seedVariant(t, store, "SKU-1", "10.00", 5)

	dup := &domain.Variant{ProductID: v.ProductID, SKU: "SKU-1", Price: dec("1.00"), IsActive: true}
	assert.ErrorIs(t, store.CreateVariant(context.Background(), dup), ErrDuplicate)
}

func TestGetProduct_OnlyActiveVariants(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 5)

	hidden := &domain.Variant{ProductID: v.ProductID, SKU: "SKU-HIDDEN", Price: dec("10.00"), IsActive: false}
	require.NoError(t, store.CreateVariant(ctx, hidden))

	p, err := store.GetProduct(ctx, v.ProductID)
	require.NoError(t, err)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "SKU-1", p.Variants[0].SKU)
}

func TestGetProduct_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetProduct(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestListProducts_Pagination(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedVariant(t, store, "A", "1.00", 1)
	seedVariant(t, store, "B", "1.00", 1)
	seedVariant(t, store, "C", "1.00", 1)

	page, err := store.ListProducts(ctx, domain.ProductFilter{}, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "product-B", page[0].Slug)
	assert.Equal(t, "product-C", page[1].Slug)
}

func TestListProducts_CancelledContext(t *testing.T) {
	store := setupStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ListProducts(ctx, domain.ProductFilter{}, 10, 0)
	assert.Error(t, err)
}

func TestDecrementStock_CompareAndDecrement(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 3)

	ok, err := store.DecrementStock(ctx, v.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.DecrementStock(ctx, v.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)
}

func TestRestoreStock(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 3)

	require.NoError(t, store.RestoreStock(ctx, v.ID, 4))
	require.NoError(t, store.RestoreStock(ctx, 999, 4))

	got, err := store.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock)
}

func TestSetStockAndDeleteVariant(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v := seedVariant(t, store, "SKU-1", "10.00", 3)

	require.NoError(t, store.SetStock(ctx, v.ID, 9))
	assert.ErrorIs(t, store.SetStock(ctx, 999, 1), domain.ErrVariantNotFound)

	require.NoError(t, store.DeleteVariant(ctx, v.ID))
	assert.ErrorIs(t, store.DeleteVariant(ctx, v.ID), domain.ErrVariantNotFound)
}
