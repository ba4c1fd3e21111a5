package service

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guest = domain.Identity{SessionKey: "sess-1"}

func TestCartService_GetCart_CreatesAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, err := f.carts.GetCart(ctx, guest)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, "sess-1", cart.SessionKey)
	assert.True(t, f.cache.cached(guest.Key()))

	again, err := f.carts.GetCart(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
	assert.Equal(t, 1, f.cache.hits)
}

func TestCartService_GetCart_NoIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.carts.GetCart(context.Background(), domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrIdentityRequired)
}

func TestCartService_AddItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 5)

	cart, err := f.carts.AddItem(ctx, guest, v.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.True(t, dec("10.00").Equal(cart.Items[0].PriceSnapshot))
	assert.Equal(t, "MUG-1", cart.Items[0].SKU)

	cart, err = f.carts.AddItem(ctx, guest, v.ID, 3)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.True(t, dec("50.00").Equal(cart.Subtotal()))
}

func TestCartService_AddItem_UsesSalePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := &domain.Product{Title: "Shirt", Slug: "shirt", IsActive: true}
	require.NoError(t, f.store.CreateProduct(ctx, p))
	sale := dec("8.00")
	v := &domain.Variant{ProductID: p.ID, SKU: "SHIRT-1", Price: dec("10.00"), SalePrice: &sale, Stock: 3, IsActive: true}
	require.NoError(t, f.store.CreateVariant(ctx, v))

	cart, err := f.carts.AddItem(ctx, guest, v.ID, 1)
	require.NoError(t, err)
	assert.True(t, dec("8.00").Equal(cart.Items[0].PriceSnapshot))
}

func TestCartService_AddItem_ExceedsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 3)

	_, err := f.carts.AddItem(ctx, guest, v.ID, 2)
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, guest, v.ID, 2)
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	var oos *domain.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 3, oos.Available)

	cart, err := f.carts.GetCart(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestCartService_AddItem_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 3)

	_, err := f.carts.AddItem(ctx, guest, v.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.carts.AddItem(ctx, guest, 9999, 1)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestCartService_AddItem_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 3)

	_, err := f.carts.GetCart(ctx, guest)
	require.NoError(t, err)

	cart, err := f.carts.AddItem(ctx, guest, v.ID, 1)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Contains(t, f.cache.deletes, guest.Key())
}

func TestCartService_UpdateQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 4)

	cart, err := f.carts.AddItem(ctx, guest, v.ID, 1)
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = f.carts.UpdateQuantity(ctx, guest, itemID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	assert.True(t, dec("10.00").Equal(cart.Items[0].PriceSnapshot))

	_, err = f.carts.UpdateQuantity(ctx, guest, itemID, 5)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	_, err = f.carts.UpdateQuantity(ctx, guest, itemID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestCartService_UpdateQuantity_OtherOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 4)

	cart, err := f.carts.AddItem(ctx, guest, v.ID, 1)
	require.NoError(t, err)

	other := domain.Identity{SessionKey: "sess-2"}
	_, err = f.carts.UpdateQuantity(ctx, other, cart.Items[0].ID, 2)
	assert.ErrorIs(t, err, domain.ErrCartItemNotFound)
}

func TestCartService_RemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := seedVariant(t, f.store, "MUG-1", "10.00", 4)
	b := seedVariant(t, f.store, "MUG-2", "12.00", 4)

	_, err := f.carts.AddItem(ctx, guest, a.ID, 1)
	require.NoError(t, err)
	cart, err := f.carts.AddItem(ctx, guest, b.ID, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	cart, err = f.carts.RemoveItem(ctx, guest, cart.FindItem(a.ID).ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "MUG-2", cart.Items[0].SKU)

	_, err = f.carts.RemoveItem(ctx, guest, 9999)
	assert.ErrorIs(t, err, domain.ErrCartItemNotFound)
}

func TestCartService_ClearCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 4)

	require.NoError(t, f.carts.ClearCart(ctx, guest))

	_, err := f.carts.AddItem(ctx, guest, v.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.carts.ClearCart(ctx, guest))

	cart, err := f.carts.GetCart(ctx, guest)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestCartService_MergeOnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := seedVariant(t, f.store, "MUG-1", "10.00", 3)
	guestOnly := seedVariant(t, f.store, "MUG-2", "12.00", 5)
	user := domain.Identity{UserID: 42}

	_, err := f.carts.AddItem(ctx, user, shared.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, guest, shared.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, guest, guestOnly.ID, 1)
	require.NoError(t, err)

	cart, err := f.carts.MergeOnLogin(ctx, guest.SessionKey, user.UserID)
	require.NoError(t, err)
	require.NotNil(t, cart.UserID)
	assert.Equal(t, int64(42), *cart.UserID)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.FindItem(shared.ID).Quantity, "capped at stock")
	assert.Equal(t, 1, cart.FindItem(guestOnly.ID).Quantity)

	_, err = f.store.GetCartByOwner(ctx, guest)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	assert.Contains(t, f.cache.deletes, guest.Key())
	assert.Contains(t, f.cache.deletes, user.Key())
}

func TestCartService_MergeOnLogin_IntoEmptyUserCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mug := seedVariant(t, f.store, "MUG-1", "10.00", 5)
	cup := seedVariant(t, f.store, "CUP-1", "4.00", 5)

	_, err := f.carts.AddItem(ctx, guest, mug.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, guest, cup.ID, 1)
	require.NoError(t, err)

	cart, err := f.carts.MergeOnLogin(ctx, guest.SessionKey, 42)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 2, cart.FindItem(mug.ID).Quantity)
	assert.Equal(t, 1, cart.FindItem(cup.ID).Quantity)
	assert.True(t, dec("24.00").Equal(cart.Subtotal()))

	_, err = f.store.GetCartByOwner(ctx, guest)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestCartService_MergeOnLogin_StockGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 3)
	user := domain.Identity{UserID: 42}

	_, err := f.carts.AddItem(ctx, user, v.ID, 3)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, guest, v.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.store.SetStock(ctx, v.ID, 0))

	cart, err := f.carts.MergeOnLogin(ctx, guest.SessionKey, user.UserID)
	require.NoError(t, err)
	assert.Nil(t, cart.FindItem(v.ID), "line above stock is removed")
	assert.True(t, cart.IsEmpty())
}

// failingMoveStore fails the nth MoveCartItem of a transaction.
type failingMoveStore struct {
	Store
	failOn int
}

var errMoveFailed = errors.New("move failed")

func (s *failingMoveStore) ExecTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return s.Store.ExecTx(ctx, func(q repository.Querier) error {
		return fn(&failingMoveQuerier{Querier: q, failOn: s.failOn})
	})
}

type failingMoveQuerier struct {
	repository.Querier
	failOn int
	moves  int
}

func (q *failingMoveQuerier) MoveCartItem(ctx context.Context, itemID, toCartID int64) error {
	q.moves++
	if q.moves == q.failOn {
		return errMoveFailed
	}
	return q.Querier.MoveCartItem(ctx, itemID, toCartID)
}

func TestCartService_MergeOnLogin_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mug := seedVariant(t, f.store, "MUG-1", "10.00", 5)
	cup := seedVariant(t, f.store, "CUP-1", "4.00", 5)

	_, err := f.carts.AddItem(ctx, guest, mug.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, guest, cup.ID, 1)
	require.NoError(t, err)

	carts := NewCartService(&failingMoveStore{Store: f.store, failOn: 2}, f.cache, zap.NewNop())
	_, err = carts.MergeOnLogin(ctx, guest.SessionKey, 42)
	require.ErrorIs(t, err, errMoveFailed)

	guestCart, err := f.store.GetCartByOwner(ctx, guest)
	require.NoError(t, err)
	require.Len(t, guestCart.Items, 2)
	assert.Equal(t, 2, guestCart.FindItem(mug.ID).Quantity)
	assert.Equal(t, 1, guestCart.FindItem(cup.ID).Quantity)

	_, err = f.store.GetCartByOwner(ctx, domain.Identity{UserID: 42})
	assert.ErrorIs(t, err, domain.ErrCartNotFound, "user cart creation rolled back")
}

func TestCartService_MergeOnLogin_NoGuestCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, err := f.carts.MergeOnLogin(ctx, "missing", 7)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	require.NotNil(t, cart.UserID)
	assert.Equal(t, int64(7), *cart.UserID)
}

func TestCartService_GetOrCreateCart_MergesOnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := seedVariant(t, f.store, "MUG-1", "10.00", 3)

	_, err := f.carts.AddItem(ctx, guest, v.ID, 1)
	require.NoError(t, err)

	cart, err := f.carts.GetOrCreateCart(ctx, domain.Identity{UserID: 9, SessionKey: guest.SessionKey})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)

	// a second call finds nothing left to merge
	cart, err = f.carts.GetOrCreateCart(ctx, domain.Identity{UserID: 9, SessionKey: guest.SessionKey})
	require.NoError(t, err)
	assert.Equal(t, 1, cart.TotalItems())
}
