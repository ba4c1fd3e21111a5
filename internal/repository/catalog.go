package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const variantColumns = `v.id, v.product_id, p.title, v.sku, v.attributes, v.price, v.sale_price, v.stock, v.is_active`

const productColumns = `p.id, p.title, p.slug, p.description, p.category_id, p.brand_id, p.is_active, p.created_at`

func (q *Queries) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO products (title, slug, description, category_id, brand_id, is_active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := q.db.QueryRowContext(ctx, query,
		p.Title,
		p.Slug,
		p.Description,
		p.CategoryID,
		p.BrandID,
		p.IsActive,
		p.CreatedAt,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (q *Queries) CreateVariant(ctx context.Context, v *domain.Variant) error {
	query := `INSERT INTO product_variants (product_id, sku, attributes, price, sale_price, stock, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := q.db.QueryRowContext(ctx, query,
		v.ProductID,
		v.SKU,
		v.Attributes,
		v.Price,
		nullDecimal(v.SalePrice),
		v.Stock,
		v.IsActive,
	).Scan(&v.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}

// ListProducts returns active products matching f with their active variants.
func (q *Queries) ListProducts(ctx context.Context, f domain.ProductFilter, limit, offset int) ([]*domain.Product, error) {
	where, args := productWhere(f)
	args = append(args, limit, offset)
	query := `SELECT ` + productColumns + `
		FROM products p` + where + `
		ORDER BY p.id
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, p := range products {
		variants, err := q.listVariants(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Variants = variants
	}

	return products, nil
}

// productWhere builds the WHERE clause for f with numbered placeholders.
func productWhere(f domain.ProductFilter) (string, []any) {
	var args []any
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	list := func(values []string) string {
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = param(v)
		}
		return strings.Join(ph, ", ")
	}

	conds := []string{"p.is_active"}
	if len(f.CategorySlugs) > 0 {
		conds = append(conds, "p.category_id IN (SELECT id FROM categories WHERE slug IN ("+list(f.CategorySlugs)+"))")
	}
	if len(f.BrandSlugs) > 0 {
		conds = append(conds, "p.brand_id IN (SELECT id FROM brands WHERE slug IN ("+list(f.BrandSlugs)+"))")
	}
	if text := strings.TrimSpace(f.Query); text != "" {
		pattern := likePattern(text)
		conds = append(conds, "(LOWER(p.title) LIKE "+param(pattern)+" OR LOWER(p.description) LIKE "+param(pattern)+")")
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND "), args
}

func likePattern(text string) string {
	return "%" + strings.ToLower(text) + "%"
}

func (q *Queries) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return q.getProduct(ctx, "p.id = $1", id)
}

func (q *Queries) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	return q.getProduct(ctx, "p.slug = $1", slug)
}

func (q *Queries) getProduct(ctx context.Context, cond string, arg any) (*domain.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products p
		WHERE ` + cond + ` AND p.is_active`

	p, err := scanProduct(q.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	variants, err := q.listVariants(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Variants = variants
	return p, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var categoryID, brandID sql.NullInt64
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Slug,
		&p.Description,
		&categoryID,
		&brandID,
		&p.IsActive,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.CategoryID = int64Ptr(categoryID)
	p.BrandID = int64Ptr(brandID)
	return p, nil
}

func (q *Queries) listVariants(ctx context.Context, productID int64) ([]domain.Variant, error) {
	query := `SELECT ` + variantColumns + `
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.product_id = $1 AND v.is_active
		ORDER BY v.id`

	rows, err := q.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return variants, nil
}

// GetVariant returns the variant whether or not it is active; callers decide.
func (q *Queries) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	query := `SELECT ` + variantColumns + `
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`

	v, err := scanVariant(q.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecrementStock removes qty units only if that many are left. It reports
// false without changing anything when stock is short.
func (q *Queries) DecrementStock(ctx context.Context, variantID int64, qty int) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE product_variants SET stock = stock - $1 WHERE id = $2 AND stock >= $3`,
		qty, variantID, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock rows affected: %w", err)
	}
	return n == 1, nil
}

// RestoreStock adds qty back; a missing variant is not an error.
func (q *Queries) RestoreStock(ctx context.Context, variantID int64, qty int) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE product_variants SET stock = stock + $1 WHERE id = $2`,
		qty, variantID)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

func (q *Queries) SetStock(ctx context.Context, variantID int64, stock int) error {
	res, err := q.db.ExecContext(ctx, `UPDATE product_variants SET stock = $1 WHERE id = $2`, stock, variantID)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

func (q *Queries) DeleteVariant(ctx context.Context, variantID int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM product_variants WHERE id = $1`, variantID)
	if err != nil {
		return fmt.Errorf("delete variant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariant(row rowScanner) (*domain.Variant, error) {
	v := &domain.Variant{}
	var sale decimal.NullDecimal
	err := row.Scan(
		&v.ID,
		&v.ProductID,
		&v.ProductTitle,
		&v.SKU,
		&v.Attributes,
		&v.Price,
		&sale,
		&v.Stock,
		&v.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan variant: %w", err)
	}
	if sale.Valid {
		v.SalePrice = &sale.Decimal
	}
	return v, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
