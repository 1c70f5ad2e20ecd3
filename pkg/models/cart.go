package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartLine struct {
	ProductID      string          `bson:"product_id" json:"product_id"`
	Quantity       int             `bson:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `bson:"unit_price" json:"unit_price"`
	AppliedOfferID string          `bson:"applied_offer_id,omitempty" json:"applied_offer_id,omitempty"`
	LineDiscount   decimal.Decimal `bson:"line_discount" json:"line_discount"`
	AddedAt        time.Time       `bson:"added_at" json:"added_at"`
}

// AppliedCoupon is the snapshot of an offer's terms taken when the coupon was
// applied, so totals can be re-derived without another offer lookup.
type AppliedCoupon struct {
	OfferID string        `bson:"offer_id" json:"offer_id"`
	Code    string        `bson:"code" json:"code"`
	Terms   DiscountTerms `bson:"terms" json:"terms"`
}

type Cart struct {
	ID             string          `bson:"_id" json:"id"`
	OwnerID        string          `bson:"owner_id" json:"owner_id"`
	Lines          []CartLine      `bson:"lines" json:"lines"`
	CouponCode     string          `bson:"coupon_code,omitempty" json:"coupon_code,omitempty"`
	Coupon         *AppliedCoupon  `bson:"coupon,omitempty" json:"coupon,omitempty"`
	CouponDiscount decimal.Decimal `bson:"coupon_discount" json:"coupon_discount"`
	Subtotal       decimal.Decimal `bson:"subtotal" json:"subtotal"`
	Tax            decimal.Decimal `bson:"tax" json:"tax"`
	Shipping       decimal.Decimal `bson:"shipping" json:"shipping"`
	Total          decimal.Decimal `bson:"total" json:"total"`
	Version        int64           `bson:"version" json:"version"`
	CreatedAt      time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updated_at"`
	ExpiresAt      time.Time       `bson:"expires_at" json:"expires_at"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// LineIndex returns the position of the line for productID, or -1.
func (c *Cart) LineIndex(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}
