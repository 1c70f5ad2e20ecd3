package offer

import (
	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

var hundred = decimal.NewFromInt(100)

// Validate checks an offer before it is saved.
func Validate(o *models.Offer) error {
	if err := validate.Struct(o); err != nil {
		return apperr.FromValidation(err)
	}
	if !o.Validity.EndDate.After(o.Validity.StartDate) {
		return apperr.New(apperr.KindValidation, "end date must be after start date")
	}
	if o.Value.IsNegative() {
		return apperr.New(apperr.KindValidation, "value cannot be negative")
	}
	if o.Type == models.OfferPercentage && o.Value.GreaterThan(hundred) {
		return apperr.New(apperr.KindValidation, "percentage cannot exceed 100")
	}
	if o.MinimumPurchase.IsNegative() {
		return apperr.New(apperr.KindValidation, "minimum purchase cannot be negative")
	}
	if o.MaximumDiscount != nil && o.MaximumDiscount.IsNegative() {
		return apperr.New(apperr.KindValidation, "maximum discount cannot be negative")
	}
	return nil
}
