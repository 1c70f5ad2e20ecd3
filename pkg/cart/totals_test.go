package cart

import (
	"math/rand"
	"testing"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func policy(rate, shipping string) PricingPolicy {
	return PricingPolicy{TaxRate: money.MustParse(rate), Shipping: money.MustParse(shipping), TTL: DefaultTTL}
}

func line(id, unit string, qty int) models.CartLine {
	return models.CartLine{ProductID: id, UnitPrice: money.MustParse(unit), Quantity: qty}
}

func percentCoupon(value, minimum string) *models.AppliedCoupon {
	return &models.AppliedCoupon{
		OfferID: "o1",
		Code:    "SAVE",
		Terms: models.DiscountTerms{
			Type:            models.OfferPercentage,
			Value:           money.MustParse(value),
			MinimumPurchase: money.MustParse(minimum),
		},
	}
}

func TestDeriveTotalsScenario(t *testing.T) {
	lines := []models.CartLine{line("p1", "100", 2)}
	p := policy("0.10", "0")

	got := DeriveTotals(lines, nil, p)
	assert.Equal(t, "200", got.Subtotal.String())
	assert.Equal(t, "20", got.Tax.String())
	assert.Equal(t, "220", got.Total.String())

	got = DeriveTotals(lines, percentCoupon("10", "50"), p)
	assert.Equal(t, "20", got.Discount.String())
	assert.Equal(t, "200", got.Total.String())
}

func TestDeriveTotalsLineDiscountAndShipping(t *testing.T) {
	lines := []models.CartLine{line("p1", "19.99", 3), line("p2", "5.05", 1)}
	lines[0].LineDiscount = money.MustParse("4.97")
	got := DeriveTotals(lines, nil, policy("0.08", "4.50"))

	assert.Equal(t, "60.05", got.Subtotal.String())
	assert.Equal(t, "4.8", got.Tax.String())
	assert.Equal(t, "4.5", got.Shipping.String())
	assert.Equal(t, "69.35", got.Total.String())
}

func TestDeriveTotalsEmptyCartHasNoShipping(t *testing.T) {
	got := DeriveTotals(nil, percentCoupon("10", "0"), policy("0.10", "7"))
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Shipping.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestDeriveTotalsFreeShipping(t *testing.T) {
	coupon := &models.AppliedCoupon{Terms: models.DiscountTerms{
		Type:            models.OfferFreeShipping,
		MinimumPurchase: money.MustParse("50"),
	}}
	p := policy("0", "9.99")

	got := DeriveTotals([]models.CartLine{line("p", "60", 1)}, coupon, p)
	assert.True(t, got.Shipping.IsZero())
	assert.True(t, got.Discount.IsZero())
	assert.Equal(t, "60", got.Total.String())

	got = DeriveTotals([]models.CartLine{line("p", "40", 1)}, coupon, p)
	assert.Equal(t, "9.99", got.Shipping.String())
	assert.Equal(t, "49.99", got.Total.String())
}

func TestDeriveTotalsClampsOversizedLineDiscount(t *testing.T) {
	lines := []models.CartLine{line("p", "10", 1)}
	lines[0].LineDiscount = money.MustParse("25")
	got := DeriveTotals(lines, nil, policy("0.10", "0"))
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Total.IsZero())
}

// Every derived cart satisfies subtotal = Σ(unit×qty − lineDiscount) and
// total = subtotal + tax + shipping − discount.
func TestDeriveTotalsKeepsSubCentSubtotal(t *testing.T) {
	lines := []models.CartLine{line("p1", "0.333", 3)}
	coupon := &models.AppliedCoupon{Terms: models.DiscountTerms{Type: models.OfferFixedAmount, Value: money.MustParse("5")}}

	got := DeriveTotals(lines, coupon, policy("0.10", "0"))
	assert.Equal(t, "0.999", got.Subtotal.String())
	assert.Equal(t, "0.1", got.Tax.String())
	assert.Equal(t, "0.999", got.Discount.String())
	assert.Equal(t, "0.1", got.Total.String())
}

func TestDeriveTotalsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := policy("0.0825", "3.99")
	for i := 0; i < 500; i++ {
		n := rng.Intn(5)
		lines := make([]models.CartLine, n)
		want := decimal.Zero
		for j := range lines {
			unit := decimal.New(int64(rng.Intn(50000)), -2)
			qty := 1 + rng.Intn(9)
			lines[j] = models.CartLine{UnitPrice: unit, Quantity: qty}
			want = want.Add(unit.Mul(decimal.NewFromInt(int64(qty))))
		}
		var coupon *models.AppliedCoupon
		if rng.Intn(2) == 0 {
			coupon = percentCoupon(decimal.NewFromInt(int64(rng.Intn(101))).String(), "0")
		}

		got := DeriveTotals(lines, coupon, p)
		require.True(t, got.Subtotal.Equal(want), "subtotal %s want %s", got.Subtotal, want)
		sum := got.Subtotal.Add(got.Tax).Add(got.Shipping).Sub(got.Discount)
		require.True(t, got.Total.Equal(sum), "total %s want %s", got.Total, sum)
		require.True(t, got.Discount.LessThanOrEqual(got.Subtotal))
	}
}
