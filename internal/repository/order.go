package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

const orderColumns = `id, order_number, user_id, session_key, status, payment_status,
	billing_address_id, shipping_address_id, billing_snapshot, shipping_snapshot,
	guest_email, guest_phone, notes, subtotal, discount, shipping_cost, total_price,
	created_at, updated_at`

// CreateOrder inserts the order, its frozen items and its payment row, and
// assigns ID, OrderNumber and item IDs. Callers run it inside ExecTx.
func (q *Queries) CreateOrder(ctx context.Context, o *domain.Order) error {
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal billing address: %w", err)
	}
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	now := utcNow()
	o.CreatedAt, o.UpdatedAt = now, now

	var userID any
	var sessionKey any
	if o.UserID != nil {
		userID = *o.UserID
	} else {
		sessionKey = o.SessionKey
	}

	err = q.db.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, session_key, status, payment_status,
			billing_address_id, shipping_address_id, billing_snapshot, shipping_snapshot,
			guest_email, guest_phone, notes, subtotal, discount, shipping_cost, total_price,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		userID,
		sessionKey,
		o.Status,
		o.PaymentStatus,
		o.BillingAddressID,
		o.ShippingAddressID,
		string(billing),
		string(shipping),
		o.GuestEmail,
		o.GuestPhone,
		o.Notes,
		o.Subtotal,
		o.Discount,
		o.ShippingCost,
		o.TotalPrice,
		o.CreatedAt,
		o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	o.OrderNumber = domain.OrderNumber(o.ID)
	if _, err := q.db.ExecContext(ctx, `UPDATE orders SET order_number = $1 WHERE id = $2`, o.OrderNumber, o.ID); err != nil {
		return fmt.Errorf("set order number: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := q.db.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, variant_id, product_title, sku, attributes, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			item.OrderID,
			item.VariantID,
			item.ProductTitle,
			item.SKU,
			item.Attributes,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if o.Payment != nil {
		p := o.Payment
		p.OrderID = o.ID
		p.CreatedAt = now
		err := q.db.QueryRowContext(ctx,
			`INSERT INTO payments (order_id, method, amount, transaction_id, success, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			p.OrderID, p.Method, p.Amount, p.TransactionID, p.Success, p.CreatedAt,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}

	return nil
}

func (q *Queries) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	o, err := scanOrder(q.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := q.loadOrderDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrdersByOwner lists the owner's orders newest first. Guest orders are
// matched by session key only while they have no user.
func (q *Queries) ListOrdersByOwner(ctx context.Context, owner domain.Identity, limit, offset int) ([]*domain.Order, error) {
	owner = owner.Owner()
	var (
		where string
		arg   any
	)
	switch {
	case owner.Authenticated():
		where, arg = "user_id = $1", owner.UserID
	case owner.SessionKey != "":
		where, arg = "session_key = $1 AND user_id IS NULL", owner.SessionKey
	default:
		return nil, domain.ErrIdentityRequired
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		arg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, o := range orders {
		if err := q.loadOrderDetails(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// CancelOrder flips a cancellable order to cancelled/failed. It reports
// false when the order was not in a cancellable state at update time.
func (q *Queries) CancelOrder(ctx context.Context, orderID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, payment_status = $2, updated_at = $3
		 WHERE id = $4 AND status IN ('pending', 'processing') AND payment_status <> 'paid'`,
		domain.OrderStatusCancelled, domain.PaymentStatusFailed, utcNow(), orderID)
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel order rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateOrderStatus moves the order from one status to another only if it
// is still in from.
func (q *Queries) UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, utcNow(), orderID, from)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkOrderPaid records a successful payment unless the order is cancelled
// or already paid.
func (q *Queries) MarkOrderPaid(ctx context.Context, orderID int64, transactionID string) (bool, error) {
	now := utcNow()
	res, err := q.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = $2
		 WHERE id = $3 AND status <> 'cancelled' AND payment_status <> 'paid'`,
		domain.PaymentStatusPaid, now, orderID)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order paid rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := q.db.ExecContext(ctx,
		`UPDATE payments SET success = $1, transaction_id = $2, paid_at = $3 WHERE order_id = $4`,
		true, transactionID, now, orderID); err != nil {
		return false, fmt.Errorf("update payment: %w", err)
	}
	return true, nil
}

func (q *Queries) loadOrderDetails(ctx context.Context, o *domain.Order) error {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, order_id, variant_id, product_title, sku, attributes, quantity, unit_price, subtotal
		 FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}

	o.Items = nil
	for rows.Next() {
		var item domain.OrderItem
		var variantID sql.NullInt64
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&variantID,
			&item.ProductTitle,
			&item.SKU,
			&item.Attributes,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
		); err != nil {
			rows.Close()
			return fmt.Errorf("scan order item: %w", err)
		}
		if variantID.Valid {
			id := variantID.Int64
			item.VariantID = &id
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	p := &domain.Payment{}
	var paidAt sql.NullTime
	err = q.db.QueryRowContext(ctx,
		`SELECT id, order_id, method, amount, transaction_id, success, paid_at, created_at
		 FROM payments WHERE order_id = $1`, o.ID,
	).Scan(&p.ID, &p.OrderID, &p.Method, &p.Amount, &p.TransactionID, &p.Success, &paidAt, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query payment: %w", err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	o.Payment = p
	return nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var (
		orderNumber sql.NullString
		userID      sql.NullInt64
		sessionKey  sql.NullString
		billingID   sql.NullInt64
		shippingID  sql.NullInt64
		billing     []byte
		shipping    []byte
	)
	err := row.Scan(
		&o.ID,
		&orderNumber,
		&userID,
		&sessionKey,
		&o.Status,
		&o.PaymentStatus,
		&billingID,
		&shippingID,
		&billing,
		&shipping,
		&o.GuestEmail,
		&o.GuestPhone,
		&o.Notes,
		&o.Subtotal,
		&o.Discount,
		&o.ShippingCost,
		&o.TotalPrice,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan order row: %w", err)
	}

	o.OrderNumber = orderNumber.String
	o.SessionKey = sessionKey.String
	if userID.Valid {
		id := userID.Int64
		o.UserID = &id
	}
	if billingID.Valid {
		id := billingID.Int64
		o.BillingAddressID = &id
	}
	if shippingID.Valid {
		id := shippingID.Int64
		o.ShippingAddressID = &id
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return o, nil
}
