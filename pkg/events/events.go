// Package events fans order lifecycle events out to downstream sinks.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Type string

const (
	OrderCreated         Type = "order.created"
	OrderStatusChanged   Type = "order.status_changed"
	OrderRefundRequested Type = "order.refund_requested"
	OrderRefunded        Type = "order.refunded"
)

type OrderEvent struct {
	ID             string             `json:"id" bson:"id"`
	Type           Type               `json:"type" bson:"type"`
	OrderID        string             `json:"order_id" bson:"order_id"`
	OrderNumber    string             `json:"order_number" bson:"order_number"`
	UserID         string             `json:"user_id" bson:"user_id"`
	Status         models.OrderStatus `json:"status" bson:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty" bson:"previous_status,omitempty"`
	Total          decimal.Decimal    `json:"total" bson:"total"`
	Amount         decimal.Decimal    `json:"amount" bson:"amount"`
	ItemCount      int                `json:"item_count" bson:"item_count"`
	Actor          string             `json:"actor,omitempty" bson:"actor,omitempty"`
	Note           string             `json:"note,omitempty" bson:"note,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at" bson:"occurred_at"`
}

// NewOrderEvent captures the current state of o.
func NewOrderEvent(typ Type, o *models.Order, actor string, now time.Time) OrderEvent {
	ev := OrderEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      o.Status,
		Total:       o.Pricing.Total,
		Amount:      o.Pricing.Total,
		ItemCount:   o.ItemCount(),
		Actor:       actor,
		OccurredAt:  now,
	}
	if n := len(o.StatusHistory); n > 0 {
		ev.Note = o.StatusHistory[n-1].Note
	}
	if n := len(o.StatusHistory); n > 1 {
		ev.PreviousStatus = o.StatusHistory[n-2].Status
	}
	if typ == OrderRefunded && o.Refund.Amount != nil {
		ev.Amount = *o.Refund.Amount
	}
	return ev
}

type Sink interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev OrderEvent) error

func (f SinkFunc) Publish(ctx context.Context, ev OrderEvent) error {
	return f(ctx, ev)
}

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, OrderEvent) error { return nil })

// Fanout delivers each event to every sink. A failing sink does not stop the
// others; the failures are logged and joined.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger.Named("events")}
}

func (f *Fanout) Publish(ctx context.Context, ev OrderEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			f.logger.Error("publish order event",
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.String("order_number", ev.OrderNumber),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
