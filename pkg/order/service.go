package order

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/serial"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store persists orders. CreateOrder returns apperr.ErrConflict on a duplicate
// order number. SaveOrder applies optimistic versioning the same way carts do.
type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	SaveOrder(ctx context.Context, o *models.Order) error
	ListOrders(ctx context.Context, f Filter) ([]*models.Order, int64, error)
}

// Inventory adjusts product stock atomically. ReserveStock always counts the
// purchase and takes quantity off tracked stock, failing with
// apperr.ErrOutOfStock when tracked stock is short and backorders are off.
// ReleaseStock undoes one ReserveStock.
type Inventory interface {
	ReserveStock(ctx context.Context, productID string, quantity int) error
	ReleaseStock(ctx context.Context, productID string, quantity int) error
}

type Filter struct {
	UserID string
	Status models.OrderStatus
	Page   int
	Limit  int
}

// Normalize fills paging defaults.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
	return f
}

type Deps struct {
	Store     Store
	Inventory Inventory
	Events    events.Sink
	Locker    serial.Locker
	Logger    *zap.Logger
	Clock     func() time.Time
}

type Service struct {
	store     Store
	inventory Inventory
	events    events.Sink
	locker    serial.Locker
	logger    *zap.Logger
	clock     func() time.Time
}

func NewService(deps Deps) *Service {
	s := &Service{
		store:     deps.Store,
		inventory: deps.Inventory,
		events:    deps.Events,
		locker:    deps.Locker,
		logger:    deps.Logger,
		clock:     deps.Clock,
	}
	if s.events == nil {
		s.events = events.Nop
	}
	if s.locker == nil {
		s.locker = serial.Direct
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("order")
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Get returns the order if actor owns it or is an admin.
func (s *Service) Get(ctx context.Context, actor models.Identity, number string) (*models.Order, error) {
	o, err := s.store.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := authorize(o, actor); err != nil {
		return nil, err
	}
	return o, nil
}

// ListForUser pages through actor's own orders.
func (s *Service) ListForUser(ctx context.Context, actor models.Identity, status models.OrderStatus, page, limit int) ([]*models.Order, int64, error) {
	return s.store.ListOrders(ctx, Filter{UserID: actor.UserID, Status: status, Page: page, Limit: limit}.Normalize())
}

// List pages through all orders. Admin only.
func (s *Service) List(ctx context.Context, actor models.Identity, f Filter) ([]*models.Order, int64, error) {
	if !actor.IsAdmin() {
		return nil, 0, apperr.New(apperr.KindUnauthorized, "admin access required")
	}
	return s.store.ListOrders(ctx, f.Normalize())
}

// Cancel cancels a pending or processing order and puts its stock back.
func (s *Service) Cancel(ctx context.Context, actor models.Identity, number, reason string) (*models.Order, error) {
	o, err := s.mutate(ctx, number, func(o *models.Order, now time.Time) error {
		if err := authorize(o, actor); err != nil {
			return err
		}
		return Cancel(o, actor.UserID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.restoreInventory(ctx, o)
	s.publish(ctx, events.OrderStatusChanged, o, actor.UserID)
	return o, nil
}

func (s *Service) RequestRefund(ctx context.Context, actor models.Identity, number, reason string) (*models.Order, error) {
	o, err := s.mutate(ctx, number, func(o *models.Order, now time.Time) error {
		if err := authorize(o, actor); err != nil {
			return err
		}
		return RequestRefund(o, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderRefundRequested, o, actor.UserID)
	return o, nil
}

// ProcessRefund settles a requested refund. A nil amount refunds the total.
func (s *Service) ProcessRefund(ctx context.Context, actor models.Identity, number string, amount *decimal.Decimal, reason string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "admin access required")
	}
	o, err := s.mutate(ctx, number, func(o *models.Order, now time.Time) error {
		return ProcessRefund(o, amount, reason, actor.UserID, now)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderRefunded, o, actor.UserID)
	return o, nil
}

// UpdateStatus is the admin transition entry point. Cancellation restores
// stock; refunds must go through ProcessRefund.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Identity, number string, to models.OrderStatus, note string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "admin access required")
	}
	switch to {
	case models.OrderCancelled:
		return s.Cancel(ctx, actor, number, note)
	case models.OrderRefunded:
		return nil, apperr.New(apperr.KindInvalidTransition, "refunds must be processed through the refund endpoint")
	}
	o, err := s.mutate(ctx, number, func(o *models.Order, now time.Time) error {
		return Transition(o, to, actor.UserID, note, now)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderStatusChanged, o, actor.UserID)
	return o, nil
}

// Recalculate re-derives an order's totals from its items. Admin only.
func (s *Service) Recalculate(ctx context.Context, actor models.Identity, number string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "admin access required")
	}
	return s.mutate(ctx, number, func(o *models.Order, now time.Time) error {
		Recalculate(o)
		o.UpdatedAt = now
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, number string, fn func(o *models.Order, now time.Time) error) (*models.Order, error) {
	var out *models.Order
	err := s.locker.WithLock(ctx, serial.OrderKey(number), func(ctx context.Context) error {
		o, err := s.store.GetOrderByNumber(ctx, number)
		if err != nil {
			return err
		}
		if err := fn(o, s.clock()); err != nil {
			return err
		}
		if err := s.store.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("save order %s: %w", number, err)
		}
		out = o
		return nil
	})
	return out, err
}

func (s *Service) restoreInventory(ctx context.Context, o *models.Order) {
	for _, it := range o.Items {
		if err := s.inventory.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			s.logger.Error("restore stock after cancel",
				zap.String("order_number", o.OrderNumber),
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err))
		}
	}
}

func (s *Service) publish(ctx context.Context, typ events.Type, o *models.Order, actor string) {
	if err := s.events.Publish(ctx, events.NewOrderEvent(typ, o, actor, s.clock())); err != nil {
		s.logger.Warn("order event not delivered",
			zap.String("type", string(typ)),
			zap.String("order_number", o.OrderNumber),
			zap.Error(err))
	}
}

func authorize(o *models.Order, actor models.Identity) error {
	if actor.IsAdmin() || o.UserID == actor.UserID {
		return nil
	}
	return apperr.New(apperr.KindUnauthorized, "not authorized to access order %s", o.OrderNumber)
}
