package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const cartItemSelect = `
	SELECT ci.id, ci.cart_id, ci.variant_id, ci.quantity, ci.price_snapshot,
	       ci.product_title, ci.sku, ci.attributes, ci.added_at,
	       v.id, v.product_id, p.title, v.sku, v.attributes, v.price, v.sale_price, v.stock, v.is_active
	FROM cart_items ci
	LEFT JOIN product_variants v ON v.id = ci.variant_id
	LEFT JOIN products p ON p.id = v.product_id`

func cartOwnerClause(owner domain.Identity) (string, any) {
	if owner.Authenticated() {
		return "user_id = $1", owner.UserID
	}
	return "session_key = $1", owner.SessionKey
}

// GetCartByOwner loads the cart with its items in the order they were added.
func (q *Queries) GetCartByOwner(ctx context.Context, owner domain.Identity) (*domain.Cart, error) {
	return q.getCart(ctx, owner, "")
}

// LockCartByOwner is GetCartByOwner holding the cart row until the
// transaction ends. Items are read after the lock is taken, so a second
// writer of the same cart sees the first one's committed result.
func (q *Queries) LockCartByOwner(ctx context.Context, owner domain.Identity) (*domain.Cart, error) {
	return q.getCart(ctx, owner, q.rowLock)
}

func (q *Queries) getCart(ctx context.Context, owner domain.Identity, lock string) (*domain.Cart, error) {
	owner = owner.Owner()
	if !owner.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	clause, arg := cartOwnerClause(owner)

	cart := &domain.Cart{}
	var userID sql.NullInt64
	var sessionKey sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_key, created_at, updated_at FROM carts WHERE `+clause+lock, arg,
	).Scan(&cart.ID, &userID, &sessionKey, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	if userID.Valid {
		id := userID.Int64
		cart.UserID = &id
	}
	cart.SessionKey = sessionKey.String

	items, err := q.listCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return cart, nil
}

// GetOrCreateCart returns the owner's cart, creating it if needed. A
// concurrent insert for the same owner is absorbed by ON CONFLICT and the
// winner's row is read back.
func (q *Queries) GetOrCreateCart(ctx context.Context, owner domain.Identity) (*domain.Cart, error) {
	owner = owner.Owner()
	cart, err := q.GetCartByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return nil, err
	}

	var userID any
	var sessionKey any
	if owner.Authenticated() {
		userID = owner.UserID
	} else {
		sessionKey = owner.SessionKey
	}

	now := utcNow()
	var id int64
	err = q.db.QueryRowContext(ctx,
		`INSERT INTO carts (user_id, session_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT DO NOTHING
		 RETURNING id`,
		userID, sessionKey, now, now,
	).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	return q.GetCartByOwner(ctx, owner)
}

func (q *Queries) listCartItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	rows, err := q.db.QueryContext(ctx, cartItemSelect+` WHERE ci.cart_id = $1 ORDER BY ci.added_at, ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// GetCartItem returns the item only if it belongs to cartID.
func (q *Queries) GetCartItem(ctx context.Context, cartID, itemID int64) (*domain.CartItem, error) {
	item, err := scanCartItem(q.db.QueryRowContext(ctx,
		cartItemSelect+` WHERE ci.cart_id = $1 AND ci.id = $2`, cartID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (q *Queries) AddCartItem(ctx context.Context, item *domain.CartItem) error {
	if item.AddedAt.IsZero() {
		item.AddedAt = utcNow()
	}
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO cart_items (cart_id, variant_id, quantity, price_snapshot, product_title, sku, attributes, added_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		item.CartID,
		item.VariantID,
		item.Quantity,
		item.PriceSnapshot,
		item.ProductTitle,
		item.SKU,
		item.Attributes,
		item.AddedAt,
	).Scan(&item.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (q *Queries) SetCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := q.db.ExecContext(ctx, `UPDATE cart_items SET quantity = $1 WHERE id = $2`, quantity, itemID)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

// MoveCartItem reassigns an item to another cart, keeping its snapshot.
func (q *Queries) MoveCartItem(ctx context.Context, itemID, toCartID int64) error {
	res, err := q.db.ExecContext(ctx, `UPDATE cart_items SET cart_id = $1 WHERE id = $2`, toCartID, itemID)
	if err != nil {
		return fmt.Errorf("move cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (q *Queries) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (q *Queries) ClearCartItems(ctx context.Context, cartID int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return nil
}

func (q *Queries) DeleteCart(ctx context.Context, cartID int64) error {
	if err := q.ClearCartItems(ctx, cartID); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (q *Queries) TouchCart(ctx context.Context, cartID int64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE carts SET updated_at = $1 WHERE id = $2`, utcNow(), cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func scanCartItem(row rowScanner) (*domain.CartItem, error) {
	item := &domain.CartItem{}
	var (
		variantRef  sql.NullInt64
		vID         sql.NullInt64
		vProductID  sql.NullInt64
		vTitle      sql.NullString
		vSKU        sql.NullString
		vAttributes sql.NullString
		vPrice      decimal.NullDecimal
		vSale       decimal.NullDecimal
		vStock      sql.NullInt64
		vActive     sql.NullBool
	)
	err := row.Scan(
		&item.ID,
		&item.CartID,
		&variantRef,
		&item.Quantity,
		&item.PriceSnapshot,
		&item.ProductTitle,
		&item.SKU,
		&item.Attributes,
		&item.AddedAt,
		&vID,
		&vProductID,
		&vTitle,
		&vSKU,
		&vAttributes,
		&vPrice,
		&vSale,
		&vStock,
		&vActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cart item: %w", err)
	}

	if variantRef.Valid {
		id := variantRef.Int64
		item.VariantID = &id
	}
	if vID.Valid {
		v := &domain.Variant{
			ID:           vID.Int64,
			ProductID:    vProductID.Int64,
			ProductTitle: vTitle.String,
			SKU:          vSKU.String,
			Attributes:   vAttributes.String,
			Price:        vPrice.Decimal,
			Stock:        int(vStock.Int64),
			IsActive:     vActive.Bool,
		}
		if vSale.Valid {
			sale := vSale.Decimal
			v.SalePrice = &sale
		}
		item.Variant = v
	}
	return item, nil
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
