package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fjod/storefront/internal/service"

var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// CartInvalidator drops cached carts after the order path empties them.
type CartInvalidator interface {
	Invalidate(ctx context.Context, id domain.Identity)
}

type CreateOrderInput struct {
	BillingAddressID  *int64
	ShippingAddressID *int64
	BillingAddress    *AddressInput
	ShippingAddress   *AddressInput
	Discount          decimal.Decimal
	ShippingCost      *decimal.Decimal
	PaymentMethod     domain.PaymentMethod
	Notes             string
	GuestEmail        string
	GuestPhone        string
}

type OrderService struct {
	store    Store
	carts    CartInvalidator
	shipping ShippingRates
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewOrderService(store Store, carts CartInvalidator, shipping ShippingRates, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:    store,
		carts:    carts,
		shipping: shipping,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// CreateOrder converts the identity's cart into an order. Stock re-check,
// stock decrement, order rows, cart clearing and the outbox event commit
// together or not at all.
func (s *OrderService) CreateOrder(ctx context.Context, id domain.Identity, in CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	if !id.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.PaymentMethodCOD
	}
	if !in.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if in.Discount.IsNegative() {
		return nil, domain.ErrInvalidDiscount
	}
	owner := id.Owner()

	var order *domain.Order
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		// A concurrent conversion of the same cart waits here and then
		// finds it empty.
		cart, err := q.LockCartByOwner(ctx, owner)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrEmptyCart
		}
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		for _, item := range cart.Items {
			if err := checkStock(item); err != nil {
				return err
			}
		}

		billing, err := s.resolveAddress(ctx, q, owner, in.BillingAddressID, in.BillingAddress, domain.AddressTypeBilling)
		if err != nil {
			return err
		}
		shipping, err := s.resolveAddress(ctx, q, owner, in.ShippingAddressID, in.ShippingAddress, domain.AddressTypeShipping)
		if err != nil {
			return err
		}

		subtotal := cart.Subtotal()
		if in.Discount.GreaterThan(subtotal) {
			return domain.ErrInvalidDiscount
		}
		shippingCost := s.shipping.Resolve(in.ShippingCost, shipping.City)
		total := subtotal.Sub(in.Discount).Add(shippingCost)

		order = &domain.Order{
			Status:            domain.OrderStatusPending,
			PaymentStatus:     domain.PaymentStatusUnpaid,
			BillingAddressID:  &billing.ID,
			ShippingAddressID: &shipping.ID,
			BillingAddress:    billing.Snapshot(),
			ShippingAddress:   shipping.Snapshot(),
			GuestEmail:        in.GuestEmail,
			GuestPhone:        in.GuestPhone,
			Notes:             in.Notes,
			Subtotal:          subtotal,
			Discount:          in.Discount,
			ShippingCost:      shippingCost,
			TotalPrice:        total,
			Payment: &domain.Payment{
				Method: in.PaymentMethod,
				Amount: total,
			},
		}
		if owner.Authenticated() {
			uid := owner.UserID
			order.UserID = &uid
		} else {
			order.SessionKey = owner.SessionKey
		}

		for _, item := range cart.Items {
			ok, err := q.DecrementStock(ctx, *item.VariantID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return s.insufficientStock(ctx, q, item)
			}
			order.Items = append(order.Items, domain.OrderItem{
				VariantID:    item.VariantID,
				ProductTitle: lineTitle(item),
				SKU:          item.SKU,
				Attributes:   item.Attributes,
				Quantity:     item.Quantity,
				UnitPrice:    item.PriceSnapshot,
				Subtotal:     item.Total(),
			})
		}

		if err := q.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := q.ClearCartItems(ctx, cart.ID); err != nil {
			return err
		}
		return q.InsertOutboxEvent(ctx, repository.AggregateOrder, order.OrderNumber, repository.EventOrderCreated, newOrderEvent(order))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn(ctx, s.logger, "create order failed", zap.String("owner", owner.Key()), zap.Error(err))
		return nil, err
	}

	s.carts.Invalidate(ctx, owner)
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	logger.Info(ctx, s.logger, "order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("owner", owner.Key()),
		zap.String("total_price", order.TotalPrice.StringFixed(2)),
	)
	return order, nil
}

// CancelOrder cancels a pending or processing unpaid order and restores its
// stock. The conditional update makes a concurrent second cancel a no-op.
func (s *OrderService) CancelOrder(ctx context.Context, id domain.Identity, orderNumber string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrder")
	defer span.End()

	owner := id.Owner()
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		order, err := ownedOrder(ctx, q, owner, orderNumber)
		if err != nil {
			return err
		}
		if err := order.CanCancel(); err != nil {
			return err
		}

		ok, err := q.CancelOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if !ok {
			current, err := q.GetOrderByNumber(ctx, orderNumber)
			if err != nil {
				return err
			}
			if err := current.CanCancel(); err != nil {
				return err
			}
			return &domain.CancellationNotAllowedError{Reason: "Order changed while cancelling"}
		}

		for _, item := range order.Items {
			if item.VariantID == nil {
				continue
			}
			if err := q.RestoreStock(ctx, *item.VariantID, item.Quantity); err != nil {
				return err
			}
		}

		order.Status = domain.OrderStatusCancelled
		order.PaymentStatus = domain.PaymentStatusFailed
		return q.InsertOutboxEvent(ctx, repository.AggregateOrder, order.OrderNumber, repository.EventOrderCancelled, newOrderEvent(order))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, s.logger, "order cancelled", zap.String("order_number", orderNumber))
	return s.store.GetOrderByNumber(ctx, orderNumber)
}

func (s *OrderService) GetOrder(ctx context.Context, id domain.Identity, orderNumber string) (*domain.Order, error) {
	return ownedOrder(ctx, s.store, id.Owner(), orderNumber)
}

// ListOrders pages through the identity's orders, newest first. page starts at 1.
func (s *OrderService) ListOrders(ctx context.Context, id domain.Identity, page, pageSize int) ([]*domain.Order, error) {
	if !id.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if page < 1 {
		page = 1
	}
	limit, _ := clampPage(pageSize, 0)
	return s.store.ListOrdersByOwner(ctx, id.Owner(), limit, (page-1)*limit)
}

// MarkPaid records a confirmed payment for the order.
func (s *OrderService) MarkPaid(ctx context.Context, orderNumber, transactionID string) (*domain.Order, error) {
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		order, err := q.GetOrderByNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		ok, err := q.MarkOrderPaid(ctx, order.ID, transactionID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		return q.InsertOutboxEvent(ctx, repository.AggregateOrder, order.OrderNumber, repository.EventOrderPaid, newOrderEvent(order))
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, s.logger, "order paid", zap.String("order_number", orderNumber))
	return s.store.GetOrderByNumber(ctx, orderNumber)
}

// AdvanceStatus moves an order forward through fulfilment.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderNumber string, next domain.OrderStatus) (*domain.Order, error) {
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		order, err := q.GetOrderByNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		if !order.CanAdvanceTo(next) {
			return domain.ErrInvalidTransition
		}
		ok, err := q.UpdateOrderStatus(ctx, order.ID, order.Status, next)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		order.Status = next
		return q.InsertOutboxEvent(ctx, repository.AggregateOrder, order.OrderNumber, repository.EventOrderStatus, newOrderEvent(order))
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrderByNumber(ctx, orderNumber)
}

func (s *OrderService) resolveAddress(ctx context.Context, q repository.Querier, owner domain.Identity, ref *int64, inline *AddressInput, t domain.AddressType) (*domain.Address, error) {
	if owner.Authenticated() && ref != nil {
		return resolveOwnedAddress(ctx, q, owner.UserID, *ref, t)
	}
	if inline != nil {
		if err := inline.validate(); err != nil {
			return nil, err
		}
		var userID *int64
		if owner.Authenticated() {
			uid := owner.UserID
			userID = &uid
		}
		in := *inline
		in.IsDefault = false
		a := in.toAddress(userID, t)
		if err := q.CreateAddress(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	}
	if ref != nil {
		return nil, &domain.AddressNotFoundError{AddressType: t, ID: *ref}
	}
	return nil, &domain.AddressRequiredError{AddressType: t}
}

func (s *OrderService) insufficientStock(ctx context.Context, q repository.Querier, item domain.CartItem) error {
	available := 0
	if v, err := q.GetVariant(ctx, *item.VariantID); err == nil {
		available = v.AvailableStock()
	}
	return &domain.InsufficientStockError{ProductName: lineTitle(item), Available: available}
}

func checkStock(item domain.CartItem) error {
	if item.VariantID == nil || item.Variant == nil || !item.Variant.IsActive {
		return &domain.InsufficientStockError{ProductName: lineTitle(item), Available: 0}
	}
	if item.Quantity > item.Variant.AvailableStock() {
		return &domain.InsufficientStockError{ProductName: lineTitle(item), Available: item.Variant.AvailableStock()}
	}
	return nil
}

func lineTitle(item domain.CartItem) string {
	if item.ProductTitle != "" {
		return item.ProductTitle
	}
	if item.Variant != nil {
		return item.Variant.ProductTitle
	}
	return item.SKU
}

func ownedOrder(ctx context.Context, q repository.Querier, owner domain.Identity, orderNumber string) (*domain.Order, error) {
	if !owner.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	order, err := q.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !ownsOrder(order, owner) {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func ownsOrder(o *domain.Order, owner domain.Identity) bool {
	if owner.Authenticated() {
		return o.UserID != nil && *o.UserID == owner.UserID
	}
	return o.UserID == nil && owner.SessionKey != "" && o.SessionKey == owner.SessionKey
}

type orderEventItem struct {
	VariantID *int64          `json:"variant_id,omitempty"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type orderEvent struct {
	OrderNumber   string               `json:"order_number"`
	UserID        *int64               `json:"user_id,omitempty"`
	SessionKey    string               `json:"session_key,omitempty"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	TotalPrice    decimal.Decimal      `json:"total_price"`
	Items         []orderEventItem     `json:"items"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func newOrderEvent(o *domain.Order) orderEvent {
	ev := orderEvent{
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		SessionKey:    o.SessionKey,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalPrice:    o.TotalPrice,
		OccurredAt:    time.Now().UTC(),
	}
	for _, item := range o.Items {
		ev.Items = append(ev.Items, orderEventItem{
			VariantID: item.VariantID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return ev
}
