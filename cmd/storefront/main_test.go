package main

import (
	"testing"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingPolicy(t *testing.T) {
	policy, err := pricingPolicy(config.PricingConfig{TaxRate: "0.16", Shipping: "4.99", CartTTL: 48 * time.Hour})
	require.NoError(t, err)
	assert.True(t, policy.TaxRate.Equal(money.MustParse("0.16")))
	assert.True(t, policy.Shipping.Equal(money.MustParse("4.99")))
	assert.Equal(t, 48*time.Hour, policy.TTL)

	_, err = pricingPolicy(config.PricingConfig{TaxRate: "ten percent"})
	assert.Error(t, err)
	_, err = pricingPolicy(config.PricingConfig{Shipping: "-1"})
	assert.Error(t, err)
}
