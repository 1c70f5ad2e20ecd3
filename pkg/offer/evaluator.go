// Package offer evaluates coupons and manages the offer catalogue.
//
// The evaluation functions are pure: they never record usage. Usage is
// recorded by checkout once an order exists.
package offer

import (
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/shopspring/decimal"
)

// NormalizeCode canonicalizes a coupon code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValid reports whether the offer is active, inside its validity window and
// below its total usage limit.
func IsValid(o *models.Offer, now time.Time) bool {
	if o == nil || !o.IsActive {
		return false
	}
	if now.Before(o.Validity.StartDate) || now.After(o.Validity.EndDate) {
		return false
	}
	if o.UsageLimit.Total != nil && o.UsageCount >= *o.UsageLimit.Total {
		return false
	}
	return true
}

// CanUserUse reports whether userID may redeem the offer at now.
func CanUserUse(o *models.Offer, userID string, now time.Time) bool {
	if !IsValid(o, now) {
		return false
	}
	return o.UsesBy(userID) < o.UsageLimit.PerUser
}

// Eligibility explains why CanUserUse is false: InvalidCoupon when the offer
// was deactivated, Expired when it is outside its window or out of total uses,
// AlreadyUsed when the user's quota is spent.
func Eligibility(o *models.Offer, userID string, now time.Time) error {
	if o == nil {
		return apperr.New(apperr.KindInvalidCoupon, "invalid coupon code")
	}
	if !o.IsActive {
		return apperr.New(apperr.KindInvalidCoupon, "coupon %s is no longer active", o.Code)
	}
	if !IsValid(o, now) {
		return apperr.New(apperr.KindExpired, "coupon %s has expired", o.Code)
	}
	if o.UsesBy(userID) >= o.UsageLimit.PerUser {
		return apperr.New(apperr.KindAlreadyUsed, "coupon %s has already been used", o.Code)
	}
	return nil
}

// ComputeDiscount returns the discount the terms grant on subtotal, rounded to
// cents. The result never exceeds MaximumDiscount or the subtotal itself.
//
// BOGO halves the whole subtotal instead of pairing units. Free shipping yields
// zero here; the cart waives shipping separately.
func ComputeDiscount(t models.DiscountTerms, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || subtotal.LessThan(t.MinimumPurchase) {
		return money.Zero
	}

	var discount decimal.Decimal
	switch t.Type {
	case models.OfferPercentage:
		discount = money.Percent(subtotal, t.Value)
	case models.OfferFixedAmount:
		discount = t.Value
	case models.OfferBOGO:
		discount = subtotal.Div(decimal.NewFromInt(2))
	default:
		return money.Zero
	}

	discount = money.Round(money.ClampZero(discount))
	if t.MaximumDiscount != nil {
		discount = money.Min(discount, *t.MaximumDiscount)
	}
	return money.Min(discount, subtotal)
}

// WaivesShipping reports whether the terms remove shipping for subtotal.
func WaivesShipping(t models.DiscountTerms, subtotal decimal.Decimal) bool {
	return t.Type == models.OfferFreeShipping && subtotal.GreaterThanOrEqual(t.MinimumPurchase)
}
