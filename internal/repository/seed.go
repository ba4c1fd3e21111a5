package repository

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// SeedCatalog inserts a small demo catalog when the products table is empty.
func (s *Store) SeedCatalog(ctx context.Context) error {
	existing, err := s.ListProducts(ctx, domain.ProductFilter{}, 1, 0)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	clothing := domain.Category{Name: "Clothing", Slug: "clothing", IsActive: true}
	menswear := domain.Category{Name: "Men's Wear", Slug: "mens-wear", IsActive: true, DisplayOrder: 1}
	accessories := domain.Category{Name: "Accessories", Slug: "accessories", IsActive: true, DisplayOrder: 2}
	threads := domain.Brand{Name: "Dhaka Threads", Slug: "dhaka-threads", Description: "Everyday cotton wear", IsActive: true}
	leather := domain.Brand{Name: "Bengal Leather", Slug: "bengal-leather", Description: "Handmade leather goods", IsActive: true}

	sale := decimal.RequireFromString("450.00")
	catalog := []struct {
		product  domain.Product
		category *domain.Category
		brand    *domain.Brand
		variants []domain.Variant
	}{
		{
			product:  domain.Product{Title: "Cotton T-Shirt", Slug: "cotton-t-shirt", Description: "Soft combed cotton", IsActive: true},
			category: &menswear,
			brand:    &threads,
			variants: []domain.Variant{
				{SKU: "TSHIRT-RED-M", Attributes: "Red / M", Price: decimal.RequireFromString("500.00"), SalePrice: &sale, Stock: 25, IsActive: true},
				{SKU: "TSHIRT-BLUE-L", Attributes: "Blue / L", Price: decimal.RequireFromString("500.00"), Stock: 10, IsActive: true},
			},
		},
		{
			product:  domain.Product{Title: "Denim Jeans", Slug: "denim-jeans", Description: "Straight fit denim", IsActive: true},
			category: &menswear,
			brand:    &threads,
			variants: []domain.Variant{
				{SKU: "JEANS-32", Attributes: "32", Price: decimal.RequireFromString("1800.00"), Stock: 8, IsActive: true},
			},
		},
		{
			product:  domain.Product{Title: "Leather Wallet", Slug: "leather-wallet", Description: "Bi-fold wallet", IsActive: true},
			category: &accessories,
			brand:    &leather,
			variants: []domain.Variant{
				{SKU: "WALLET-BRN", Attributes: "Brown", Price: decimal.RequireFromString("950.00"), Stock: 15, IsActive: true},
			},
		},
	}

	return s.ExecTx(ctx, func(q Querier) error {
		if err := q.CreateCategory(ctx, &clothing); err != nil {
			return fmt.Errorf("seed category %s: %w", clothing.Slug, err)
		}
		menswear.ParentID = &clothing.ID
		for _, c := range []*domain.Category{&menswear, &accessories} {
			if err := q.CreateCategory(ctx, c); err != nil {
				return fmt.Errorf("seed category %s: %w", c.Slug, err)
			}
		}
		for _, b := range []*domain.Brand{&threads, &leather} {
			if err := q.CreateBrand(ctx, b); err != nil {
				return fmt.Errorf("seed brand %s: %w", b.Slug, err)
			}
		}

		for _, entry := range catalog {
			p := entry.product
			p.CategoryID = &entry.category.ID
			p.BrandID = &entry.brand.ID
			if err := q.CreateProduct(ctx, &p); err != nil {
				return fmt.Errorf("seed product %s: %w", p.Slug, err)
			}
			for _, v := range entry.variants {
				v.ProductID = p.ID
				if err := q.CreateVariant(ctx, &v); err != nil {
					return fmt.Errorf("seed variant %s: %w", v.SKU, err)
				}
			}
		}
		return nil
	})
}
