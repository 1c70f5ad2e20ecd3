package offer

import (
	"errors"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newOffer(typ models.OfferType, value string) *models.Offer {
	return &models.Offer{
		ID:   "offer-1",
		Name: "Spring sale",
		Code: "SPRING",
		DiscountTerms: models.DiscountTerms{
			Type:  typ,
			Value: money.MustParse(value),
		},
		UsageLimit: models.UsageLimit{PerUser: 1},
		Validity: models.Validity{
			StartDate: now.Add(-24 * time.Hour),
			EndDate:   now.Add(24 * time.Hour),
		},
		IsActive: true,
	}
}

func intPtr(v int) *int { return &v }

func TestIsValid(t *testing.T) {
	o := newOffer(models.OfferPercentage, "10")
	assert.True(t, IsValid(o, now))
	assert.True(t, IsValid(o, o.Validity.StartDate), "start is inclusive")
	assert.True(t, IsValid(o, o.Validity.EndDate), "end is inclusive")
	assert.False(t, IsValid(o, o.Validity.EndDate.Add(time.Second)))
	assert.False(t, IsValid(o, o.Validity.StartDate.Add(-time.Second)))

	o.UsageLimit.Total = intPtr(2)
	o.UsageCount = 1
	assert.True(t, IsValid(o, now))
	o.UsageCount = 2
	assert.False(t, IsValid(o, now))

	o.UsageCount = 0
	o.IsActive = false
	assert.False(t, IsValid(o, now))
	assert.False(t, IsValid(nil, now))
}

func TestCanUserUse(t *testing.T) {
	o := newOffer(models.OfferPercentage, "10")
	assert.True(t, CanUserUse(o, "u1", now))

	o.UsedBy = append(o.UsedBy, models.OfferUsage{UserID: "u1", UsedAt: now, OrderID: "o1"})
	o.UsageCount++
	assert.False(t, CanUserUse(o, "u1", now), "per-user limit of one is spent")
	assert.True(t, CanUserUse(o, "u2", now))

	o.UsageLimit.PerUser = 2
	assert.True(t, CanUserUse(o, "u1", now))
}

func TestEligibility(t *testing.T) {
	o := newOffer(models.OfferFixedAmount, "5")
	require.NoError(t, Eligibility(o, "u1", now))

	o.UsedBy = []models.OfferUsage{{UserID: "u1"}}
	assert.True(t, errors.Is(Eligibility(o, "u1", now), apperr.ErrAlreadyUsed))
	assert.True(t, errors.Is(Eligibility(o, "u1", now.Add(48*time.Hour)), apperr.ErrExpired))
	assert.True(t, errors.Is(Eligibility(nil, "u1", now), apperr.ErrInvalidCoupon))

	o = newOffer(models.OfferFixedAmount, "5")
	o.UsageLimit.Total = intPtr(1)
	o.UsageCount = 1
	assert.True(t, errors.Is(Eligibility(o, "u2", now), apperr.ErrExpired), "total limit reached")

	o = newOffer(models.OfferFixedAmount, "5")
	o.IsActive = false
	err := Eligibility(o, "u1", now)
	assert.True(t, errors.Is(err, apperr.ErrInvalidCoupon))
	assert.False(t, errors.Is(err, apperr.ErrExpired))
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name     string
		terms    models.DiscountTerms
		subtotal string
		want     string
	}{
		{"percentage", models.DiscountTerms{Type: models.OfferPercentage, Value: money.MustParse("10"), MinimumPurchase: money.MustParse("50")}, "200", "20"},
		{"below minimum", models.DiscountTerms{Type: models.OfferPercentage, Value: money.MustParse("10"), MinimumPurchase: money.MustParse("50")}, "49.99", "0"},
		{"minimum is inclusive", models.DiscountTerms{Type: models.OfferFixedAmount, Value: money.MustParse("5"), MinimumPurchase: money.MustParse("50")}, "50", "5"},
		{"fixed capped at subtotal", models.DiscountTerms{Type: models.OfferFixedAmount, Value: money.MustParse("30")}, "12.50", "12.5"},
		{"bogo halves subtotal", models.DiscountTerms{Type: models.OfferBOGO}, "90", "45"},
		{"free shipping is not a discount", models.DiscountTerms{Type: models.OfferFreeShipping}, "90", "0"},
		{"maximum discount cap", models.DiscountTerms{Type: models.OfferPercentage, Value: money.MustParse("50"), MaximumDiscount: money.Ptr(money.MustParse("15"))}, "100", "15"},
		{"rounded to cents", models.DiscountTerms{Type: models.OfferPercentage, Value: money.MustParse("15")}, "33.33", "5"},
		{"zero subtotal", models.DiscountTerms{Type: models.OfferFixedAmount, Value: money.MustParse("5")}, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiscount(tt.terms, money.MustParse(tt.subtotal))
			assert.True(t, got.Equal(money.MustParse(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestComputeDiscountNeverExceedsCaps(t *testing.T) {
	limit := money.MustParse("25")
	for _, typ := range []models.OfferType{models.OfferPercentage, models.OfferFixedAmount, models.OfferBOGO} {
		for _, sub := range []string{"0.01", "1", "24.99", "25", "60", "1000"} {
			terms := models.DiscountTerms{Type: typ, Value: money.MustParse("80"), MaximumDiscount: &limit}
			subtotal := money.MustParse(sub)
			got := ComputeDiscount(terms, subtotal)
			assert.True(t, got.LessThanOrEqual(money.Min(limit, subtotal)), "%s on %s gave %s", typ, sub, got)
			assert.False(t, got.IsNegative())
		}
	}
}

func TestWaivesShipping(t *testing.T) {
	terms := models.DiscountTerms{Type: models.OfferFreeShipping, MinimumPurchase: money.MustParse("30")}
	assert.True(t, WaivesShipping(terms, money.MustParse("30")))
	assert.False(t, WaivesShipping(terms, money.MustParse("29.99")))
	terms.Type = models.OfferPercentage
	assert.False(t, WaivesShipping(terms, money.MustParse("100")))
}

func TestValidate(t *testing.T) {
	o := newOffer(models.OfferPercentage, "10")
	require.NoError(t, Validate(o))

	bad := *o
	bad.Validity.EndDate = bad.Validity.StartDate
	assert.True(t, errors.Is(Validate(&bad), apperr.ErrValidation))

	bad = *o
	bad.Type = "tiered"
	assert.True(t, errors.Is(Validate(&bad), apperr.ErrValidation))

	bad = *o
	bad.Value = money.MustParse("120")
	assert.True(t, errors.Is(Validate(&bad), apperr.ErrValidation))

	bad = *o
	bad.Code = ""
	assert.True(t, errors.Is(Validate(&bad), apperr.ErrValidation))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
}
