package repository

import (
	"context"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, store *Store, owner domain.Identity, v *domain.Variant, qty int) *domain.Order {
	t.Helper()
	ctx := context.Background()

	id := v.ID
	unit := v.EffectivePrice()
	sub := domain.LineSubtotal(unit, qty)
	o := &domain.Order{
		SessionKey:      owner.SessionKey,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		BillingAddress:  domain.AddressSnapshot{FullName: "A", City: "Dhaka", Country: domain.DefaultCountry},
		ShippingAddress: domain.AddressSnapshot{FullName: "A", City: "Dhaka", Country: domain.DefaultCountry},
		Subtotal:        sub,
		Discount:        dec("0"),
		ShippingCost:    dec("60.00"),
		TotalPrice:      sub.Add(dec("60.00")),
		Items: []domain.OrderItem{{
			VariantID:    &id,
			ProductTitle: "Product " + v.SKU,
			SKU:          v.SKU,
			Attributes:   v.Attributes,
			Quantity:     qty,
			UnitPrice:    unit,
			Subtotal:     sub,
		}},
		Payment: &domain.Payment{Method: domain.PaymentMethodCOD, Amount: sub.Add(dec("60.00"))},
	}
	if owner.Authenticated() {
		uid := owner.UserID
		o.UserID = &uid
		o.SessionKey = ""
	}

	require.NoError(t, store.ExecTx(ctx, func(q Querier) error {
		return q.CreateOrder(ctx, o)
	}))
	return o
}

func TestCreateOrder_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 5)

	o := seedOrder(t, store, domain.Identity{UserID: 3}, v, 3)
	assert.Equal(t, domain.OrderNumber(o.ID), o.OrderNumber)
	require.Len(t, o.Items, 1)
	assert.NotZero(t, o.Items[0].ID)
	assert.NotZero(t, o.Payment.ID)

	got, err := store.GetOrderByNumber(ctx, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, got.PaymentStatus)
	assert.True(t, got.TotalPrice.Equal(dec("90")))
	assert.Equal(t, "Dhaka", got.ShippingAddress.City)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.True(t, got.Items[0].Subtotal.Equal(dec("30")))
	require.NotNil(t, got.Payment)
	assert.Equal(t, domain.PaymentMethodCOD, got.Payment.Method)
	assert.False(t, got.Payment.Success)
}

func TestGetOrderByNumber_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetOrderByNumber(context.Background(), "ORD-404")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestListOrdersByOwner_ScopedAndNewestFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 50)

	first := seedOrder(t, store, domain.Identity{UserID: 1}, v, 1)
	second := seedOrder(t, store, domain.Identity{UserID: 1}, v, 2)
	seedOrder(t, store, domain.Identity{UserID: 2}, v, 1)
	guest := seedOrder(t, store, domain.Identity{SessionKey: "s"}, v, 1)

	orders, err := store.ListOrdersByOwner(ctx, domain.Identity{UserID: 1}, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	assert.Len(t, orders[0].Items, 1)

	guestOrders, err := store.ListOrdersByOwner(ctx, domain.Identity{SessionKey: "s"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, guestOrders, 1)
	assert.Equal(t, guest.ID, guestOrders[0].ID)

	_, err = store.ListOrdersByOwner(ctx, domain.Identity{}, 10, 0)
	assert.ErrorIs(t, err, domain.ErrIdentityRequired)
}

func TestCancelOrder_Conditional(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 5)
	o := seedOrder(t, store, domain.Identity{UserID: 1}, v, 1)

	ok, err := store.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetOrderByNumber(ctx, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	assert.Equal(t, domain.PaymentStatusFailed, got.PaymentStatus)
}

func TestMarkOrderPaid_BlocksCancel(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 5)
	o := seedOrder(t, store, domain.Identity{UserID: 1}, v, 1)

	ok, err := store.MarkOrderPaid(ctx, o.ID, "TXN-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkOrderPaid(ctx, o.ID, "TXN-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetOrderByNumber(ctx, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.Payment)
	assert.True(t, got.Payment.Success)
	assert.Equal(t, "TXN-1", got.Payment.TransactionID)
	assert.NotNil(t, got.Payment.PaidAt)
}

func TestUpdateOrderStatus_FromMustMatch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 5)
	o := seedOrder(t, store, domain.Identity{UserID: 1}, v, 1)

	ok, err := store.UpdateOrderStatus(ctx, o.ID, domain.OrderStatusProcessing, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.UpdateOrderStatus(ctx, o.ID, domain.OrderStatusPending, domain.OrderStatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrderItem_KeepsSnapshotAfterVariantDeletion(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	v := seedVariant(t, store, "SKU-1", "10.00", 5)
	o := seedOrder(t, store, domain.Identity{UserID: 1}, v, 2)

	require.NoError(t, store.DeleteVariant(ctx, v.ID))

	got, err := store.GetOrderByNumber(ctx, o.OrderNumber)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Nil(t, got.Items[0].VariantID)
	assert.Equal(t, "SKU-1", got.Items[0].SKU)
	assert.True(t, got.Items[0].UnitPrice.Equal(dec("10")))
}
