package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type OrderService interface {
	CreateOrder(ctx context.Context, id domain.Identity, in service.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id domain.Identity, orderNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, id domain.Identity, page, pageSize int) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, id domain.Identity, orderNumber string) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type CreateOrderRequestDTO struct {
	BillingAddressID  *int64           `json:"billing_address_id" validate:"omitempty,gt=0"`
	ShippingAddressID *int64           `json:"shipping_address_id" validate:"omitempty,gt=0"`
	BillingAddress    *AddressDTO      `json:"billing_address" validate:"omitempty"`
	ShippingAddress   *AddressDTO      `json:"shipping_address" validate:"omitempty"`
	Discount          decimal.Decimal  `json:"discount"`
	ShippingCost      *decimal.Decimal `json:"shipping_cost"`
	PaymentMethod     string           `json:"payment_method" validate:"omitempty,oneof=cod card bkash nagad"`
	Notes             string           `json:"notes" validate:"max=1000"`
	GuestEmail        string           `json:"guest_email" validate:"omitempty,email"`
	GuestPhone        string           `json:"guest_phone" validate:"max=20"`
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(ctx, identityFromContext(r.Context()), service.CreateOrderInput{
		BillingAddressID:  req.BillingAddressID,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddress:    req.BillingAddress.toInput(),
		ShippingAddress:   req.ShippingAddress.toInput(),
		Discount:          req.Discount,
		ShippingCost:      req.ShippingCost,
		PaymentMethod:     domain.PaymentMethod(req.PaymentMethod),
		Notes:             req.Notes,
		GuestEmail:        req.GuestEmail,
		GuestPhone:        req.GuestPhone,
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, identityFromContext(r.Context()),
		queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}

	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_number}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, identityFromContext(r.Context()), chi.URLParam(r, "order_number"))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/orders/{order_number}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.CancelOrder(ctx, identityFromContext(r.Context()), chi.URLParam(r, "order_number"))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}
