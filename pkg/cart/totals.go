// Package cart prices carts and serializes their mutations.
package cart

import (
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/offer"
	"github.com/shopspring/decimal"
)

// DefaultTTL is the rolling lifetime of an untouched cart.
const DefaultTTL = 7 * 24 * time.Hour

// PricingPolicy holds the store-wide pricing parameters.
type PricingPolicy struct {
	TaxRate  decimal.Decimal
	Shipping decimal.Decimal
	TTL      time.Duration
}

func DefaultPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRate:  money.MustParse("0.10"),
		Shipping: money.Zero,
		TTL:      DefaultTTL,
	}
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// DeriveTotals computes every derived amount of a cart from its lines and the
// applied coupon terms. It is the only place cart totals are computed.
//
//	subtotal = Σ(unit×qty − lineDiscount), clamped at zero, not rounded
//	tax      = subtotal × rate, rounded to cents
//	discount = coupon discount on the pre-coupon subtotal
//	total    = subtotal + tax + shipping − discount, clamped at zero
func DeriveTotals(lines []models.CartLine, coupon *models.AppliedCoupon, policy PricingPolicy) Totals {
	subtotal := money.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(money.LineTotal(l.UnitPrice, l.Quantity)).Sub(l.LineDiscount)
	}
	subtotal = money.ClampZero(subtotal)

	shipping := money.Zero
	if len(lines) > 0 {
		shipping = money.Round(policy.Shipping)
	}

	discount := money.Zero
	if coupon != nil {
		discount = offer.ComputeDiscount(coupon.Terms, subtotal)
		if offer.WaivesShipping(coupon.Terms, subtotal) {
			shipping = money.Zero
		}
	}

	tax := money.Round(subtotal.Mul(policy.TaxRate))
	total := money.ClampZero(subtotal.Add(tax).Add(shipping).Sub(discount))

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    total,
	}
}

func (t Totals) Pricing() models.Pricing {
	return models.Pricing{
		Subtotal: t.Subtotal,
		Tax:      t.Tax,
		Shipping: t.Shipping,
		Discount: t.Discount,
		Total:    t.Total,
	}
}
