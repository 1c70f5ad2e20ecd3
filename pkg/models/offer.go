package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OfferType string

const (
	OfferPercentage   OfferType = "percentage"
	OfferFixedAmount  OfferType = "fixed_amount"
	OfferBOGO         OfferType = "bogo"
	OfferFreeShipping OfferType = "free_shipping"
)

func (t OfferType) Valid() bool {
	switch t {
	case OfferPercentage, OfferFixedAmount, OfferBOGO, OfferFreeShipping:
		return true
	}
	return false
}

// DiscountTerms are the parts of an offer that determine the discount amount.
type DiscountTerms struct {
	Type            OfferType        `bson:"type" json:"type" validate:"required,oneof=percentage fixed_amount bogo free_shipping"`
	Value           decimal.Decimal  `bson:"value" json:"value"`
	MinimumPurchase decimal.Decimal  `bson:"minimum_purchase" json:"minimum_purchase"`
	MaximumDiscount *decimal.Decimal `bson:"maximum_discount,omitempty" json:"maximum_discount,omitempty"`
}

type UsageLimit struct {
	PerUser int  `bson:"per_user" json:"per_user" validate:"gte=0"`
	Total   *int `bson:"total,omitempty" json:"total,omitempty" validate:"omitempty,gte=0"`
}

type Validity struct {
	StartDate time.Time `bson:"start_date" json:"start_date" validate:"required"`
	EndDate   time.Time `bson:"end_date" json:"end_date" validate:"required"`
}

type OfferUsage struct {
	UserID  string    `bson:"user_id" json:"user_id"`
	UsedAt  time.Time `bson:"used_at" json:"used_at"`
	OrderID string    `bson:"order_id" json:"order_id"`
}

type Offer struct {
	ID            string `bson:"_id" json:"id"`
	Name          string `bson:"name" json:"name" validate:"required"`
	Code          string `bson:"code" json:"code" validate:"required,max=32"`
	Description   string `bson:"description,omitempty" json:"description,omitempty"`
	DiscountTerms `bson:",inline"`
	UsageLimit    UsageLimit   `bson:"usage_limit" json:"usage_limit"`
	UsageCount    int          `bson:"usage_count" json:"usage_count"`
	Validity      Validity     `bson:"validity" json:"validity"`
	UsedBy        []OfferUsage `bson:"used_by" json:"used_by"`
	IsActive      bool         `bson:"is_active" json:"is_active"`
	CreatedBy     string       `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt     time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `bson:"updated_at" json:"updated_at"`
}

// UsesBy counts the recorded usages for userID.
func (o *Offer) UsesBy(userID string) int {
	n := 0
	for _, u := range o.UsedBy {
		if u.UserID == userID {
			n++
		}
	}
	return n
}
