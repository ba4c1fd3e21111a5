package service

import (
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// ShippingRates charges Local for deliveries to LocalCity and Standard
// everywhere else.
type ShippingRates struct {
	LocalCity string
	Local     decimal.Decimal
	Standard  decimal.Decimal
}

func DefaultShippingRates() ShippingRates {
	return ShippingRates{
		LocalCity: "Dhaka",
		Local:     decimal.NewFromInt(60),
		Standard:  decimal.NewFromInt(120),
	}
}

func (r ShippingRates) CostFor(city string) decimal.Decimal {
	if domain.IsCity(city, r.LocalCity) {
		return r.Local
	}
	return r.Standard
}

// Resolve applies a caller override only when it is positive.
func (r ShippingRates) Resolve(override *decimal.Decimal, city string) decimal.Decimal {
	if override != nil && override.IsPositive() {
		return *override
	}
	return r.CostFor(city)
}
