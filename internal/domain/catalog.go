package domain

import "strings"

type Category struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ParentID     *int64 `json:"parent_id,omitempty"`
	Description  string `json:"description,omitempty"`
	IsActive     bool   `json:"is_active"`
	DisplayOrder int    `json:"display_order"`
	ProductCount int    `json:"product_count"`
}

type Brand struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description,omitempty"`
	IsActive     bool   `json:"is_active"`
	ProductCount int    `json:"product_count"`
}

type SearchType string

const (
	SearchProduct  SearchType = "product"
	SearchCategory SearchType = "category"
	SearchBrand    SearchType = "brand"
)

func (t SearchType) Valid() bool {
	switch t {
	case SearchProduct, SearchCategory, SearchBrand:
		return true
	}
	return false
}

// SearchResult is one hit, with the storefront path it links to.
type SearchResult struct {
	Title string     `json:"title"`
	Slug  string     `json:"slug"`
	URL   string     `json:"url"`
	Type  SearchType `json:"type"`
}

func ProductResult(p *Product) SearchResult {
	return SearchResult{Title: p.Title, Slug: p.Slug, URL: "products/" + p.Slug, Type: SearchProduct}
}

func CategoryResult(c *Category) SearchResult {
	return SearchResult{Title: c.Name, Slug: c.Slug, URL: "products?category=" + c.Slug, Type: SearchCategory}
}

func BrandResult(b *Brand) SearchResult {
	return SearchResult{Title: b.Name, Slug: b.Slug, URL: "products?brand=" + b.Slug, Type: SearchBrand}
}

// SplitSlugs parses a comma separated slug list, dropping blanks.
func SplitSlugs(raw string) []string {
	var slugs []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			slugs = append(slugs, s)
		}
	}
	return slugs
}
