package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCOD   PaymentMethod = "cod"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodBkash PaymentMethod = "bkash"
	PaymentMethodNagad PaymentMethod = "nagad"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodBkash, PaymentMethodNagad:
		return true
	}
	return false
}

type Order struct {
	ID                int64           `json:"id"`
	OrderNumber       string          `json:"order_number"`
	UserID            *int64          `json:"user_id,omitempty"`
	SessionKey        string          `json:"session_key,omitempty"`
	Status            OrderStatus     `json:"status"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	BillingAddressID  *int64          `json:"billing_address_id,omitempty"`
	ShippingAddressID *int64          `json:"shipping_address_id,omitempty"`
	BillingAddress    AddressSnapshot `json:"billing_address"`
	ShippingAddress   AddressSnapshot `json:"shipping_address"`
	GuestEmail        string          `json:"guest_email,omitempty"`
	GuestPhone        string          `json:"guest_phone,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Discount          decimal.Decimal `json:"discount"`
	ShippingCost      decimal.Decimal `json:"shipping_cost"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Items             []OrderItem     `json:"items"`
	Payment           *Payment        `json:"payment,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OrderItem is frozen at creation; VariantID is only a back reference and
// becomes nil when the variant is deleted.
type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	VariantID    *int64          `json:"variant_id,omitempty"`
	ProductTitle string          `json:"product_title"`
	SKU          string          `json:"sku"`
	Attributes   string          `json:"attributes"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	Method        PaymentMethod   `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Success       bool            `json:"success"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func OrderNumber(id int64) string {
	return fmt.Sprintf("ORD-%d", id)
}

// CanCancel reports whether the order may still be cancelled.
func (o *Order) CanCancel() error {
	switch o.Status {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return &CancellationNotAllowedError{Reason: fmt.Sprintf("Cannot cancel order with status: %s", o.Status)}
	}
	if o.PaymentStatus == PaymentStatusPaid {
		return &CancellationNotAllowedError{Reason: "Cannot cancel paid order. Please contact support for refund."}
	}
	return nil
}

var fulfilmentOrder = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// CanAdvanceTo allows forward fulfilment steps only.
func (o *Order) CanAdvanceTo(next OrderStatus) bool {
	cur, ok := fulfilmentOrder[o.Status]
	if !ok {
		return false
	}
	nxt, ok := fulfilmentOrder[next]
	return ok && nxt > cur
}

// LineSubtotal multiplies a frozen unit price by quantity.
func LineSubtotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}
