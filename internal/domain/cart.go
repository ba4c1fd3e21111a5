package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         int64      `json:"id"`
	UserID     *int64     `json:"user_id,omitempty"`
	SessionKey string     `json:"session_key,omitempty"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartItem keeps the price captured when it was added. ProductTitle, SKU and
// Attributes are stored copies so the line still renders if the variant goes away.
type CartItem struct {
	ID            int64           `json:"id"`
	CartID        int64           `json:"cart_id"`
	VariantID     *int64          `json:"variant_id,omitempty"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	ProductTitle  string          `json:"product_title"`
	SKU           string          `json:"sku"`
	Attributes    string          `json:"attributes"`
	AddedAt       time.Time       `json:"added_at"`

	// Live variant state, filled on reads.
	Variant *Variant `json:"variant,omitempty"`
}

func (i CartItem) Total() decimal.Decimal {
	return LineSubtotal(i.PriceSnapshot, i.Quantity)
}

func (i CartItem) Savings() decimal.Decimal {
	if i.Variant == nil || !i.Variant.OnSale() {
		return decimal.Zero
	}
	return i.Variant.Price.Sub(*i.Variant.SalePrice).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i CartItem) IsAvailable() bool {
	return i.Variant != nil && i.Variant.IsActive && i.Variant.Stock >= i.Quantity
}

func (i CartItem) IsPriceChanged() bool {
	return i.Variant != nil && !i.Variant.EffectivePrice().Equal(i.PriceSnapshot)
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.Total())
	}
	return sum
}

func (c *Cart) TotalSavings() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.Savings())
	}
	return sum
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindItem returns the line holding variantID, or nil.
func (c *Cart) FindItem(variantID int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].VariantID != nil && *c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}
