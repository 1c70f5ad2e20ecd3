package cart

import (
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
)

// Engine applies cart mutations. Every mutation leaves the cart with freshly
// derived totals and a refreshed expiry.
type Engine struct {
	policy PricingPolicy
}

func NewEngine(policy PricingPolicy) *Engine {
	if policy.TTL <= 0 {
		policy.TTL = DefaultTTL
	}
	return &Engine{policy: policy}
}

func (e *Engine) Policy() PricingPolicy {
	return e.policy
}

// AddItem adds quantity units of p. An existing line keeps its captured unit
// price; a new line captures the product's current sellable price.
func (e *Engine) AddItem(c *models.Cart, p *models.Product, quantity int, now time.Time) error {
	if quantity < 1 {
		return apperr.New(apperr.KindValidation, "quantity must be at least 1")
	}
	if p == nil {
		return apperr.New(apperr.KindNotFound, "product not found")
	}
	if !p.IsActive {
		return apperr.New(apperr.KindUnavailable, "product %s is not available", p.Name)
	}
	if !p.IsInStock() {
		return apperr.New(apperr.KindOutOfStock, "product %s is out of stock", p.Name)
	}

	if i := c.LineIndex(p.ID); i >= 0 {
		c.Lines[i].Quantity += quantity
	} else {
		c.Lines = append(c.Lines, models.CartLine{
			ProductID:    p.ID,
			Quantity:     quantity,
			UnitPrice:    p.SellablePrice(),
			LineDiscount: money.Zero,
			AddedAt:      now,
		})
	}
	e.Recalculate(c, now)
	return nil
}

// UpdateQuantity sets the quantity of an existing line. Zero removes it.
func (e *Engine) UpdateQuantity(c *models.Cart, productID string, quantity int, now time.Time) error {
	if quantity < 0 {
		return apperr.New(apperr.KindValidation, "quantity cannot be negative")
	}
	i := c.LineIndex(productID)
	if i < 0 {
		return apperr.New(apperr.KindNotFound, "product %s is not in the cart", productID)
	}
	if quantity == 0 {
		e.RemoveItem(c, productID, now)
		return nil
	}
	c.Lines[i].Quantity = quantity
	e.Recalculate(c, now)
	return nil
}

// RemoveItem drops the line for productID if present.
func (e *Engine) RemoveItem(c *models.Cart, productID string, now time.Time) {
	if i := c.LineIndex(productID); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
	e.Recalculate(c, now)
}

// Clear empties the cart and drops any coupon.
func (e *Engine) Clear(c *models.Cart, now time.Time) {
	c.Lines = []models.CartLine{}
	c.CouponCode = ""
	c.Coupon = nil
	e.Recalculate(c, now)
}

// ApplyCoupon snapshots o's terms onto the cart. Eligibility is the caller's
// concern; the discount is derived from the pre-coupon subtotal.
func (e *Engine) ApplyCoupon(c *models.Cart, o *models.Offer, now time.Time) {
	c.CouponCode = o.Code
	c.Coupon = &models.AppliedCoupon{
		OfferID: o.ID,
		Code:    o.Code,
		Terms:   o.DiscountTerms,
	}
	e.Recalculate(c, now)
}

func (e *Engine) RemoveCoupon(c *models.Cart, now time.Time) {
	c.CouponCode = ""
	c.Coupon = nil
	e.Recalculate(c, now)
}

// Recalculate re-derives the totals and pushes the expiry forward.
func (e *Engine) Recalculate(c *models.Cart, now time.Time) {
	t := DeriveTotals(c.Lines, c.Coupon, e.policy)
	c.Subtotal = t.Subtotal
	c.Tax = t.Tax
	c.Shipping = t.Shipping
	c.CouponDiscount = t.Discount
	c.Total = t.Total
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(e.policy.TTL)
}
