package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

const categoryColumns = `c.id, c.name, c.slug, c.parent_id, c.description, c.is_active, c.display_order,
	(SELECT COUNT(*) FROM products p WHERE p.category_id = c.id AND p.is_active)`

const brandColumns = `b.id, b.name, b.slug, b.description, b.is_active,
	(SELECT COUNT(*) FROM products p WHERE p.brand_id = b.id AND p.is_active)`

func (q *Queries) CreateCategory(ctx context.Context, c *domain.Category) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, slug, parent_id, description, is_active, display_order)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.Name,
		c.Slug,
		c.ParentID,
		c.Description,
		c.IsActive,
		c.DisplayOrder,
	).Scan(&c.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (q *Queries) CreateBrand(ctx context.Context, b *domain.Brand) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO brands (name, slug, description, is_active) VALUES ($1, $2, $3, $4) RETURNING id`,
		b.Name,
		b.Slug,
		b.Description,
		b.IsActive,
	).Scan(&b.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert brand: %w", err)
	}
	return nil
}

// ListCategories returns active categories by display order, then name.
func (q *Queries) ListCategories(ctx context.Context, limit int) ([]*domain.Category, error) {
	return q.queryCategories(ctx,
		`SELECT `+categoryColumns+` FROM categories c
		 WHERE c.is_active
		 ORDER BY c.display_order, c.name
		 LIMIT $1`, limit)
}

// ListChildCategoriesWithProducts returns active subcategories that hold at
// least one active product.
func (q *Queries) ListChildCategoriesWithProducts(ctx context.Context, limit int) ([]*domain.Category, error) {
	return q.queryCategories(ctx,
		`SELECT `+categoryColumns+` FROM categories c
		 WHERE c.is_active AND c.parent_id IS NOT NULL
		   AND EXISTS (SELECT 1 FROM products p WHERE p.category_id = c.id AND p.is_active)
		 ORDER BY c.display_order, c.name
		 LIMIT $1`, limit)
}

// SearchCategories matches name or description, case-insensitively.
func (q *Queries) SearchCategories(ctx context.Context, text string, limit int) ([]*domain.Category, error) {
	pattern := likePattern(text)
	return q.queryCategories(ctx,
		`SELECT `+categoryColumns+` FROM categories c
		 WHERE c.is_active AND (LOWER(c.name) LIKE $1 OR LOWER(c.description) LIKE $2)
		 ORDER BY c.display_order, c.name
		 LIMIT $3`, pattern, pattern, limit)
}

func (q *Queries) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories c WHERE c.slug = $1 AND c.is_active`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (q *Queries) queryCategories(ctx context.Context, query string, args ...any) ([]*domain.Category, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []*domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

func (q *Queries) ListBrands(ctx context.Context, limit int) ([]*domain.Brand, error) {
	return q.queryBrands(ctx,
		`SELECT `+brandColumns+` FROM brands b WHERE b.is_active ORDER BY b.name LIMIT $1`, limit)
}

func (q *Queries) SearchBrands(ctx context.Context, text string, limit int) ([]*domain.Brand, error) {
	pattern := likePattern(text)
	return q.queryBrands(ctx,
		`SELECT `+brandColumns+` FROM brands b
		 WHERE b.is_active AND (LOWER(b.name) LIKE $1 OR LOWER(b.description) LIKE $2)
		 ORDER BY b.name
		 LIMIT $3`, pattern, pattern, limit)
}

func (q *Queries) GetBrandBySlug(ctx context.Context, slug string) (*domain.Brand, error) {
	b, err := scanBrand(q.db.QueryRowContext(ctx,
		`SELECT `+brandColumns+` FROM brands b WHERE b.slug = $1 AND b.is_active`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBrandNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (q *Queries) queryBrands(ctx context.Context, query string, args ...any) ([]*domain.Brand, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query brands: %w", err)
	}
	defer rows.Close()

	var brands []*domain.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return brands, nil
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	c := &domain.Category{}
	var parentID sql.NullInt64
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Slug,
		&parentID,
		&c.Description,
		&c.IsActive,
		&c.DisplayOrder,
		&c.ProductCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	c.ParentID = int64Ptr(parentID)
	return c, nil
}

func scanBrand(row rowScanner) (*domain.Brand, error) {
	b := &domain.Brand{}
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Slug,
		&b.Description,
		&b.IsActive,
		&b.ProductCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan brand: %w", err)
	}
	return b, nil
}
