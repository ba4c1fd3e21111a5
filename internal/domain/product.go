package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CategoryID  *int64    `json:"category_id,omitempty"`
	BrandID     *int64    `json:"brand_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	Variants    []Variant `json:"variants,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductFilter narrows a product listing. Empty fields match everything;
// several slugs of one kind match any of them.
type ProductFilter struct {
	CategorySlugs []string
	BrandSlugs    []string
	Query         string
}

// Variant is a purchasable configuration of a product with its own price and stock.
type Variant struct {
	ID           int64            `json:"id"`
	ProductID    int64            `json:"product_id"`
	ProductTitle string           `json:"product_title"`
	SKU          string           `json:"sku"`
	Attributes   string           `json:"attributes"`
	Price        decimal.Decimal  `json:"price"`
	SalePrice    *decimal.Decimal `json:"sale_price,omitempty"`
	Stock        int              `json:"stock"`
	IsActive     bool             `json:"is_active"`
}

// EffectivePrice is the sale price when one is set, the list price otherwise.
func (v Variant) EffectivePrice() decimal.Decimal {
	if v.SalePrice != nil {
		return *v.SalePrice
	}
	return v.Price
}

func (v Variant) OnSale() bool {
	return v.SalePrice != nil && v.SalePrice.LessThan(v.Price)
}

func (v Variant) AvailableStock() int {
	return v.Stock
}
