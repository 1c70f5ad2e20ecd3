package order

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

func newOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		OrderNumber: "ORD-250315-000001",
		UserID:      "u1",
		Items: []models.OrderItem{
			{ProductID: "p1", UnitPrice: money.MustParse("100"), Quantity: 2},
		},
		Pricing: models.Pricing{
			Subtotal: money.MustParse("200"),
			Tax:      money.MustParse("20"),
			Shipping: money.Zero,
			Discount: money.MustParse("20"),
			Total:    money.MustParse("200"),
		},
		Status:        status,
		StatusHistory: []models.StatusChange{{Status: models.OrderPending, Timestamp: now}},
	}
}

func TestTransitionTable(t *testing.T) {
	all := []models.OrderStatus{models.OrderPending, models.OrderProcessing, models.OrderCompleted, models.OrderCancelled, models.OrderRefunded}
	legal := map[[2]models.OrderStatus]bool{
		{models.OrderPending, models.OrderProcessing}:   true,
		{models.OrderPending, models.OrderCancelled}:    true,
		{models.OrderProcessing, models.OrderCompleted}: true,
		{models.OrderProcessing, models.OrderCancelled}: true,
		{models.OrderCompleted, models.OrderRefunded}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]models.OrderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, IsTerminal(models.OrderCancelled))
	assert.True(t, IsTerminal(models.OrderRefunded))
	assert.False(t, IsTerminal(models.OrderCompleted))
}

func TestTransitionAppendsHistoryAndStampsPayment(t *testing.T) {
	o := newOrder(models.OrderPending)
	require.NoError(t, Transition(o, models.OrderProcessing, "admin", "picked", now))
	require.NoError(t, Transition(o, models.OrderCompleted, "admin", "", now.Add(time.Hour)))

	require.Len(t, o.StatusHistory, 3)
	assert.Equal(t, models.StatusChange{Status: models.OrderProcessing, Timestamp: now, Note: "picked", UpdatedBy: "admin"}, o.StatusHistory[1])
	require.NotNil(t, o.PaymentDetails.PaidAt)
	assert.Equal(t, now.Add(time.Hour), *o.PaymentDetails.PaidAt)
	assert.Equal(t, "paid", o.PaymentDetails.Status)

	err := Transition(o, models.OrderPending, "admin", "", now)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Len(t, o.StatusHistory, 3)
}

func TestCancel(t *testing.T) {
	for _, s := range []models.OrderStatus{models.OrderPending, models.OrderProcessing} {
		o := newOrder(s)
		require.NoError(t, Cancel(o, "u1", "changed my mind", now))
		assert.Equal(t, models.OrderCancelled, o.Status)
		assert.Equal(t, "Order cancelled: changed my mind", o.StatusHistory[len(o.StatusHistory)-1].Note)
	}
	for _, s := range []models.OrderStatus{models.OrderCompleted, models.OrderCancelled, models.OrderRefunded} {
		err := Cancel(newOrder(s), "u1", "", now)
		assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "from %s", s)
	}
}

func TestRefundFlow(t *testing.T) {
	o := newOrder(models.OrderProcessing)
	assert.True(t, errors.Is(RequestRefund(o, "broken", now), apperr.ErrInvalidTransition))

	o = newOrder(models.OrderCompleted)
	assert.True(t, errors.Is(ProcessRefund(o, nil, "", "admin", now), apperr.ErrNoRefundRequested))

	require.NoError(t, RequestRefund(o, "broken", now))
	assert.Equal(t, models.OrderCompleted, o.Status)
	assert.True(t, o.Refund.Requested)
	assert.Equal(t, "broken", o.Refund.Reason)
	assert.True(t, errors.Is(RequestRefund(o, "again", now), apperr.ErrAlreadyRequested))

	err := ProcessRefund(o, money.Ptr(money.MustParse("200.01")), "", "admin", now)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, models.OrderCompleted, o.Status)

	require.NoError(t, ProcessRefund(o, nil, "approved", "admin", now.Add(time.Hour)))
	assert.Equal(t, models.OrderRefunded, o.Status)
	require.NotNil(t, o.Refund.Amount)
	assert.Equal(t, "200", o.Refund.Amount.String())
	assert.Equal(t, "admin", o.Refund.ProcessedBy)
	assert.Equal(t, now.Add(time.Hour), *o.Refund.ProcessedAt)
	assert.Equal(t, "refunded", o.PaymentDetails.Status)

	assert.True(t, errors.Is(ProcessRefund(o, nil, "", "admin", now), apperr.ErrInvalidTransition))
}

func TestPartialRefund(t *testing.T) {
	o := newOrder(models.OrderCompleted)
	require.NoError(t, RequestRefund(o, "one item", now))
	require.NoError(t, ProcessRefund(o, money.Ptr(money.MustParse("49.995")), "", "admin", now))
	assert.Equal(t, "50", o.Refund.Amount.String())
}

func TestZeroRefundIsNotFull(t *testing.T) {
	o := newOrder(models.OrderCompleted)
	require.NoError(t, RequestRefund(o, "goodwill", now))
	require.NoError(t, ProcessRefund(o, money.Ptr(money.Zero), "", "admin", now))
	assert.Equal(t, models.OrderRefunded, o.Status)
	require.NotNil(t, o.Refund.Amount)
	assert.True(t, o.Refund.Amount.IsZero())
	assert.Equal(t, "Refund processed: 0.00", o.StatusHistory[len(o.StatusHistory)-1].Note)

	o = newOrder(models.OrderCompleted)
	require.NoError(t, RequestRefund(o, "broken", now))
	err := ProcessRefund(o, money.Ptr(money.MustParse("-1")), "", "admin", now)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestRecalculate(t *testing.T) {
	o := newOrder(models.OrderPending)
	o.Items[0].Quantity = 3
	Recalculate(o)
	assert.Equal(t, "300", o.Pricing.Subtotal.String())
	assert.Equal(t, "20", o.Pricing.Tax.String())
	assert.Equal(t, "300", o.Pricing.Total.String())
}
