// Package order governs the order lifecycle after checkout.
package order

import (
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/shopspring/decimal"
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:    {models.OrderProcessing, models.OrderCancelled},
	models.OrderProcessing: {models.OrderCompleted, models.OrderCancelled},
	models.OrderCompleted:  {models.OrderRefunded},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.OrderStatus) bool {
	return len(transitions[s]) == 0
}

// Transition moves o to status to and appends a history entry.
func Transition(o *models.Order, to models.OrderStatus, actor, note string, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return apperr.New(apperr.KindInvalidTransition, "cannot move order %s from %s to %s", o.OrderNumber, o.Status, to)
	}
	o.Status = to
	o.StatusHistory = append(o.StatusHistory, models.StatusChange{
		Status:    to,
		Timestamp: now,
		Note:      note,
		UpdatedBy: actor,
	})
	if to == models.OrderCompleted {
		paidAt := now
		o.PaymentDetails.PaidAt = &paidAt
		if o.PaymentDetails.Status == "" || o.PaymentDetails.Status == "pending" {
			o.PaymentDetails.Status = "paid"
		}
	}
	o.UpdatedAt = now
	return nil
}

// Cancel is legal from pending and processing. Inventory restoration is the
// service's concern.
func Cancel(o *models.Order, actor, reason string, now time.Time) error {
	if o.Status != models.OrderPending && o.Status != models.OrderProcessing {
		return apperr.New(apperr.KindInvalidTransition, "order %s cannot be cancelled in status %s", o.OrderNumber, o.Status)
	}
	note := "Order cancelled"
	if reason != "" {
		note = fmt.Sprintf("Order cancelled: %s", reason)
	}
	return Transition(o, models.OrderCancelled, actor, note, now)
}

// RequestRefund records a customer's refund request. The status is unchanged.
func RequestRefund(o *models.Order, reason string, now time.Time) error {
	if o.Status != models.OrderCompleted {
		return apperr.New(apperr.KindInvalidTransition, "refunds can only be requested for completed orders")
	}
	if o.Refund.Requested {
		return apperr.New(apperr.KindAlreadyRequested, "refund already requested for order %s", o.OrderNumber)
	}
	requestedAt := now
	o.Refund.Requested = true
	o.Refund.RequestedAt = &requestedAt
	o.Refund.Reason = reason
	o.UpdatedAt = now
	return nil
}

// ProcessRefund settles a requested refund. A nil amount refunds the full total.
func ProcessRefund(o *models.Order, requested *decimal.Decimal, reason, admin string, now time.Time) error {
	if o.Status == models.OrderRefunded {
		return apperr.New(apperr.KindInvalidTransition, "order %s is already refunded", o.OrderNumber)
	}
	if !o.Refund.Requested {
		return apperr.New(apperr.KindNoRefundRequested, "no refund requested for order %s", o.OrderNumber)
	}
	amount := o.Pricing.Total
	if requested != nil {
		amount = *requested
	}
	if amount.IsNegative() {
		return apperr.New(apperr.KindValidation, "refund amount cannot be negative")
	}
	amount = money.Round(amount)
	if amount.GreaterThan(o.Pricing.Total) {
		return apperr.New(apperr.KindValidation, "refund amount %s exceeds order total %s", amount, o.Pricing.Total)
	}

	note := fmt.Sprintf("Refund processed: %s", amount.StringFixed(money.Places))
	if reason != "" {
		note = fmt.Sprintf("%s (%s)", note, reason)
	}
	if err := Transition(o, models.OrderRefunded, admin, note, now); err != nil {
		return err
	}
	processedAt := now
	o.Refund.Amount = &amount
	o.Refund.ProcessedAt = &processedAt
	o.Refund.ProcessedBy = admin
	if reason != "" && o.Refund.Reason == "" {
		o.Refund.Reason = reason
	}
	o.PaymentDetails.Status = "refunded"
	return nil
}

// Recalculate re-derives the pricing subtotal and total from the item
// snapshot. Tax, shipping and discount keep their stored values.
func Recalculate(o *models.Order) {
	subtotal := money.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(money.LineTotal(it.UnitPrice, it.Quantity))
	}
	o.Pricing.Subtotal = subtotal
	o.Pricing.Total = money.ClampZero(o.Pricing.Subtotal.Add(o.Pricing.Tax).Add(o.Pricing.Shipping).Sub(o.Pricing.Discount))
}
