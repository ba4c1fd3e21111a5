package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultSearchLimit = 10
	maxSearchLimit     = 50

	homepageListLimit      = 20
	homepageSections       = 3
	homepageSectionProduct = 8
)

var (
	ErrSearchQueryRequired = errors.New("search query 'q' is required")
	ErrInvalidSearchType   = errors.New("invalid type. Must be one of: product, brand, category")
)

type CatalogService struct {
	store Store
}

func NewCatalogService(store Store) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) ListProducts(ctx context.Context, f domain.ProductFilter, limit, offset int) ([]*domain.Product, error) {
	limit, offset = clampPage(limit, offset)
	return s.store.ListProducts(ctx, f, limit, offset)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *CatalogService) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	return s.store.GetProductBySlug(ctx, slug)
}

// GetVariant hides inactive variants from callers.
func (s *CatalogService) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	v, err := s.store.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, domain.ErrVariantNotFound
	}
	return v, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.store.ListCategories(ctx, maxPageSize)
}

// CategoryPage is a category with one page of its active products.
type CategoryPage struct {
	Category *domain.Category  `json:"category"`
	Products []*domain.Product `json:"products"`
}

func (s *CatalogService) GetCategory(ctx context.Context, slug string, limit, offset int) (*CategoryPage, error) {
	c, err := s.store.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	products, err := s.ListProducts(ctx, domain.ProductFilter{CategorySlugs: []string{c.Slug}}, limit, offset)
	if err != nil {
		return nil, err
	}
	return &CategoryPage{Category: c, Products: nonNilProducts(products)}, nil
}

func (s *CatalogService) ListBrands(ctx context.Context) ([]*domain.Brand, error) {
	return s.store.ListBrands(ctx, maxPageSize)
}

type BrandPage struct {
	Brand    *domain.Brand     `json:"brand"`
	Products []*domain.Product `json:"products"`
}

func (s *CatalogService) GetBrand(ctx context.Context, slug string, limit, offset int) (*BrandPage, error) {
	b, err := s.store.GetBrandBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	products, err := s.ListProducts(ctx, domain.ProductFilter{BrandSlugs: []string{b.Slug}}, limit, offset)
	if err != nil {
		return nil, err
	}
	return &BrandPage{Brand: b, Products: nonNilProducts(products)}, nil
}

// Search looks up one kind of catalog entry by name or description. limit
// falls back to 10 when below 1 and is capped at 50.
func (s *CatalogService) Search(ctx context.Context, text string, t domain.SearchType, limit int) ([]domain.SearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrSearchQueryRequired
	}
	if !t.Valid() {
		return nil, ErrInvalidSearchType
	}
	if limit < 1 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	results := []domain.SearchResult{}
	switch t {
	case domain.SearchProduct:
		products, err := s.store.ListProducts(ctx, domain.ProductFilter{Query: text}, limit, 0)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			results = append(results, domain.ProductResult(p))
		}
	case domain.SearchCategory:
		categories, err := s.store.SearchCategories(ctx, text, limit)
		if err != nil {
			return nil, err
		}
		for _, c := range categories {
			results = append(results, domain.CategoryResult(c))
		}
	case domain.SearchBrand:
		brands, err := s.store.SearchBrands(ctx, text, limit)
		if err != nil {
			return nil, err
		}
		for _, b := range brands {
			results = append(results, domain.BrandResult(b))
		}
	}
	return results, nil
}

// Homepage is the landing page payload: top categories and brands plus a
// product strip for the first few subcategories that have stock to show.
type Homepage struct {
	Categories       []*domain.Category `json:"categories"`
	Brands           []*domain.Brand    `json:"brands"`
	CategoryProducts []*CategoryPage    `json:"category_products"`
}

func (s *CatalogService) Homepage(ctx context.Context) (*Homepage, error) {
	categories, err := s.store.ListCategories(ctx, homepageListLimit)
	if err != nil {
		return nil, err
	}
	brands, err := s.store.ListBrands(ctx, homepageListLimit)
	if err != nil {
		return nil, err
	}
	children, err := s.store.ListChildCategoriesWithProducts(ctx, homepageSections)
	if err != nil {
		return nil, err
	}

	page := &Homepage{
		Categories:       categories,
		Brands:           brands,
		CategoryProducts: []*CategoryPage{},
	}
	if page.Categories == nil {
		page.Categories = []*domain.Category{}
	}
	if page.Brands == nil {
		page.Brands = []*domain.Brand{}
	}
	for _, c := range children {
		products, err := s.store.ListProducts(ctx, domain.ProductFilter{CategorySlugs: []string{c.Slug}}, homepageSectionProduct, 0)
		if err != nil {
			return nil, err
		}
		page.CategoryProducts = append(page.CategoryProducts, &CategoryPage{Category: c, Products: nonNilProducts(products)})
	}
	return page, nil
}

func nonNilProducts(products []*domain.Product) []*domain.Product {
	if products == nil {
		return []*domain.Product{}
	}
	return products
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
