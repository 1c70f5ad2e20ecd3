// Package checkout turns a priced cart into an order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/offer"
	"github.com/example/storefront/pkg/order"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxNumberAttempts bounds order-number allocation when a number collides.
const maxNumberAttempts = 3

// Carts gives checkout exclusive access to a user's cart.
type Carts interface {
	Exclusive(ctx context.Context, ownerID string, fn func(ctx context.Context, c *models.Cart) error) error
	ClearLocked(ctx context.Context, c *models.Cart) error
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

type Offers interface {
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	RecordUsage(ctx context.Context, offerID string, usage models.OfferUsage) error
	RevertUsage(ctx context.Context, offerID, orderID string) error
}

// Sequence hands out strictly increasing numbers per name.
type Sequence interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

type Orders interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	SaveOrder(ctx context.Context, o *models.Order) error
}

type Request struct {
	UserID          string                `json:"-"`
	ShippingAddress *models.Address       `json:"shipping_address"`
	BillingAddress  *models.Address       `json:"billing_address"`
	PaymentMethod   models.PaymentMethod  `json:"payment_method"`
	PaymentDetails  models.PaymentDetails `json:"payment_details"`
	CustomerNote    string                `json:"customer_note"`
}

type Deps struct {
	Carts     Carts
	Catalog   Catalog
	Offers    Offers
	Orders    Orders
	Inventory order.Inventory
	Sequence  Sequence
	Events    events.Sink
	Logger    *zap.Logger
	Clock     func() time.Time
}

type Service struct {
	carts     Carts
	catalog   Catalog
	offers    Offers
	orders    Orders
	inventory order.Inventory
	sequence  Sequence
	events    events.Sink
	validate  *validator.Validate
	logger    *zap.Logger
	clock     func() time.Time
}

func NewService(deps Deps) *Service {
	s := &Service{
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		offers:    deps.Offers,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		sequence:  deps.Sequence,
		events:    deps.Events,
		validate:  validator.New(),
		logger:    deps.Logger,
		clock:     deps.Clock,
	}
	if s.events == nil {
		s.events = events.Nop
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("checkout")
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Checkout converts the user's cart into a pending order. Nothing is mutated
// until every line and the coupon have been re-validated; once the order is
// stored, later failures are compensated and the order is cancelled.
func (s *Service) Checkout(ctx context.Context, req Request) (*models.Order, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	var placed *models.Order
	err := s.carts.Exclusive(ctx, req.UserID, func(ctx context.Context, c *models.Cart) error {
		if c == nil || c.IsEmpty() {
			return apperr.New(apperr.KindEmptyCart, "cart is empty")
		}
		now := s.clock()

		items, err := s.snapshotItems(ctx, c)
		if err != nil {
			return err
		}
		coupon, err := s.revalidateCoupon(ctx, c, now)
		if err != nil {
			return err
		}

		o := &models.Order{
			UserID:          req.UserID,
			Items:           items,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			PaymentMethod:   req.PaymentMethod,
			PaymentDetails:  req.PaymentDetails,
			Pricing: models.Pricing{
				Subtotal: c.Subtotal,
				Tax:      c.Tax,
				Shipping: c.Shipping,
				Discount: c.CouponDiscount,
				Total:    c.Total,
			},
			CustomerNote: req.CustomerNote,
			Status:       models.OrderPending,
			StatusHistory: []models.StatusChange{{
				Status:    models.OrderPending,
				Timestamp: now,
				Note:      "Order placed",
				UpdatedBy: req.UserID,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if o.PaymentDetails.Status == "" {
			o.PaymentDetails.Status = "pending"
		}
		if coupon != nil {
			o.CouponCode = coupon.Code
			o.OfferID = coupon.ID
		}

		if err := s.persist(ctx, o, now); err != nil {
			return err
		}
		if err := s.settle(ctx, o, c, now); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order_number", placed.OrderNumber),
		zap.String("user_id", placed.UserID),
		zap.String("total", placed.Pricing.Total.StringFixed(2)))
	if err := s.events.Publish(ctx, events.NewOrderEvent(events.OrderCreated, placed, placed.UserID, s.clock())); err != nil {
		s.logger.Warn("order.created not delivered", zap.String("order_number", placed.OrderNumber), zap.Error(err))
	}
	return placed, nil
}

func (s *Service) validateRequest(req *Request) error {
	if req.UserID == "" {
		return apperr.New(apperr.KindUnauthorized, "missing user identity")
	}
	if !req.PaymentMethod.Valid() {
		return apperr.New(apperr.KindValidation, "unsupported payment method %q", req.PaymentMethod)
	}
	if req.ShippingAddress != nil {
		if err := s.validate.Struct(req.ShippingAddress); err != nil {
			return apperr.FromValidation(err)
		}
	}
	if req.BillingAddress == nil {
		req.BillingAddress = req.ShippingAddress
	} else if err := s.validate.Struct(req.BillingAddress); err != nil {
		return apperr.FromValidation(err)
	}
	return nil
}

// snapshotItems re-validates every line and captures the order items.
func (s *Service) snapshotItems(ctx context.Context, c *models.Cart) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(c.Lines))
	for _, line := range c.Lines {
		p, err := s.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.New(apperr.KindProductUnavailable, "product %s is no longer available", line.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", line.ProductID, err)
		}
		if !p.IsActive || !p.IsInStock() {
			return nil, apperr.New(apperr.KindProductUnavailable, "product %s is no longer available", p.Name)
		}
		item := models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
		if !p.IsPhysical() && p.DigitalContent != nil {
			dc := *p.DigitalContent
			item.DigitalContent = &dc
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) revalidateCoupon(ctx context.Context, c *models.Cart, now time.Time) (*models.Offer, error) {
	if c.Coupon == nil {
		return nil, nil
	}
	o, err := s.offers.GetOffer(ctx, c.Coupon.OfferID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.New(apperr.KindInvalidCoupon, "coupon %s no longer exists", c.Coupon.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("load offer: %w", err)
	}
	if err := offer.Eligibility(o, c.OwnerID, now); err != nil {
		return nil, err
	}
	return o, nil
}

// persist allocates an order number and stores the order, retrying on a
// number collision.
func (s *Service) persist(ctx context.Context, o *models.Order, now time.Time) error {
	day := now.UTC().Format("060102")
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		seq, err := s.sequence.NextSequence(ctx, "orders:"+day)
		if err != nil {
			return fmt.Errorf("allocate order number: %w", err)
		}
		o.ID = uuid.NewString()
		o.OrderNumber = FormatOrderNumber(now, seq)
		err = s.orders.CreateOrder(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return fmt.Errorf("create order: %w", err)
		}
		s.logger.Warn("order number collision", zap.String("order_number", o.OrderNumber), zap.Int("attempt", attempt+1))
		lastErr = err
	}
	return fmt.Errorf("create order after %d attempts: %w", maxNumberAttempts, lastErr)
}

// FormatOrderNumber renders ORD-YYMMDD-NNNNNN for the UTC day of t.
func FormatOrderNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%06d", t.UTC().Format("060102"), seq)
}
