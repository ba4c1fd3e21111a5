package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

type CatalogService interface {
	ListProducts(ctx context.Context, f domain.ProductFilter, limit, offset int) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	GetCategory(ctx context.Context, slug string, limit, offset int) (*service.CategoryPage, error)
	ListBrands(ctx context.Context) ([]*domain.Brand, error)
	GetBrand(ctx context.Context, slug string, limit, offset int) (*service.BrandPage, error)
	Search(ctx context.Context, text string, t domain.SearchType, limit int) ([]domain.SearchResult, error)
	Homepage(ctx context.Context) (*service.Homepage, error)
}

type ProductHandler struct {
	catalog CatalogService
	timeout time.Duration
}

func NewProductHandler(catalog CatalogService, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
	}
}

type SearchResponseDTO struct {
	Query   string                `json:"query"`
	Type    domain.SearchType     `json:"type"`
	Count   int                   `json:"count"`
	Results []domain.SearchResult `json:"results"`
}

// GET /api/v1/products?category=a,b&brand=c&search=text
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	filter := domain.ProductFilter{
		CategorySlugs: domain.SplitSlugs(q.Get("category")),
		BrandSlugs:    domain.SplitSlugs(q.Get("brand")),
		Query:         q.Get("search"),
	}

	products, err := h.catalog.ListProducts(ctx, filter, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	respondJSON(w, http.StatusOK, products)
}

// GET /api/v1/products/{product}
// A numeric reference is an id, anything else a slug.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ref := chi.URLParam(r, "product")
	var (
		product *domain.Product
		err     error
	)
	if id, errParse := strconv.ParseInt(ref, 10, 64); errParse == nil {
		if id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
			return
		}
		product, err = h.catalog.GetProduct(ctx, id)
	} else {
		product, err = h.catalog.GetProductBySlug(ctx, ref)
	}
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

// GET /api/v1/categories
func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	if categories == nil {
		categories = []*domain.Category{}
	}

	respondJSON(w, http.StatusOK, categories)
}

// GET /api/v1/categories/{slug}
func (h *ProductHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := h.catalog.GetCategory(ctx, chi.URLParam(r, "slug"), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// GET /api/v1/brands
func (h *ProductHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	brands, err := h.catalog.ListBrands(ctx)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	if brands == nil {
		brands = []*domain.Brand{}
	}

	respondJSON(w, http.StatusOK, brands)
}

// GET /api/v1/brands/{slug}
func (h *ProductHandler) GetBrand(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := h.catalog.GetBrand(ctx, chi.URLParam(r, "slug"), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// GET /api/v1/search?q=text&type=product|brand|category&limit=n
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	text := strings.TrimSpace(r.URL.Query().Get("q"))
	t := domain.SearchType(strings.ToLower(r.URL.Query().Get("type")))
	results, err := h.catalog.Search(ctx, text, t, queryInt(r, "limit", 0))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, SearchResponseDTO{
		Query:   text,
		Type:    t,
		Count:   len(results),
		Results: results,
	})
}

// GET /api/v1/homepage
func (h *ProductHandler) Homepage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := h.catalog.Homepage(ctx)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}
