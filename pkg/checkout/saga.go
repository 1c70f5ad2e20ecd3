package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"go.uber.org/zap"
)

// compensation undoes one completed saga step.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// settle runs the post-persist side effects: stock, coupon usage, cart. If a
// step fails, completed steps are undone in reverse and the order is
// cancelled; the step's error is returned.
func (s *Service) settle(ctx context.Context, o *models.Order, c *models.Cart, now time.Time) error {
	var done []compensation

	for _, it := range o.Items {
		if err := s.inventory.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
			return s.abort(ctx, o, done, fmt.Errorf("reserve %s: %w", it.ProductID, err))
		}
		done = append(done, compensation{
			name: "release " + it.ProductID,
			undo: func(ctx context.Context) error {
				return s.inventory.ReleaseStock(ctx, it.ProductID, it.Quantity)
			},
		})
	}

	if o.OfferID != "" {
		usage := models.OfferUsage{UserID: o.UserID, UsedAt: now, OrderID: o.ID}
		if err := s.offers.RecordUsage(ctx, o.OfferID, usage); err != nil {
			return s.abort(ctx, o, done, fmt.Errorf("record coupon usage: %w", err))
		}
		done = append(done, compensation{
			name: "revert usage " + o.CouponCode,
			undo: func(ctx context.Context) error {
				return s.offers.RevertUsage(ctx, o.OfferID, o.ID)
			},
		})
	}

	if err := s.carts.ClearLocked(ctx, c); err != nil {
		return s.abort(ctx, o, done, err)
	}
	return nil
}

func (s *Service) abort(ctx context.Context, o *models.Order, done []compensation, cause error) error {
	// Compensate even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.String("order_number", o.OrderNumber))
	log.Error("checkout failed after order creation, compensating", zap.Error(cause))

	for i := len(done) - 1; i >= 0; i-- {
		if err := done[i].undo(ctx); err != nil {
			log.Error("compensation failed", zap.String("step", done[i].name), zap.Error(err))
		}
	}

	if err := order.Cancel(o, models.System.UserID, "checkout failed: "+cause.Error(), s.clock()); err != nil {
		log.Error("cancel failed order", zap.Error(err))
		return cause
	}
	if err := s.orders.SaveOrder(ctx, o); err != nil {
		log.Error("save cancelled order", zap.Error(err))
	}
	return cause
}
