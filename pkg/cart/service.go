package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/serial"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by a Cache that holds no entry for the owner.
var ErrCacheMiss = errors.New("cart: cache miss")

// Store persists carts. SaveCart succeeds only when the stored version equals
// c.Version and bumps c.Version on success; otherwise it returns
// apperr.ErrConflict. CreateCart returns apperr.ErrConflict when the owner
// already has a cart.
type Store interface {
	GetCart(ctx context.Context, ownerID string) (*models.Cart, error)
	CreateCart(ctx context.Context, c *models.Cart) error
	SaveCart(ctx context.Context, c *models.Cart) error
}

// Cache is a read-through copy of carts. Failures are never fatal.
type Cache interface {
	GetCart(ctx context.Context, ownerID string) (*models.Cart, error)
	SetCart(ctx context.Context, c *models.Cart) error
	DeleteCart(ctx context.Context, ownerID string) error
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// Offers resolves a coupon code into an offer the user may redeem.
type Offers interface {
	Redeemable(ctx context.Context, code, userID string) (*models.Offer, error)
}

type Deps struct {
	Store   Store
	Catalog Catalog
	Offers  Offers
	Cache   Cache
	Locker  serial.Locker
	Policy  PricingPolicy
	Logger  *zap.Logger
	Clock   func() time.Time
}

type Service struct {
	store   Store
	catalog Catalog
	offers  Offers
	cache   Cache
	locker  serial.Locker
	engine  *Engine
	logger  *zap.Logger
	clock   func() time.Time
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = serial.Direct
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:   deps.Store,
		catalog: deps.Catalog,
		offers:  deps.Offers,
		cache:   deps.Cache,
		locker:  locker,
		engine:  NewEngine(deps.Policy),
		logger:  logger.Named("cart"),
		clock:   clock,
	}
}

func (s *Service) Engine() *Engine {
	return s.engine
}

// GetCart returns the owner's cart, creating an empty one on first access.
func (s *Service) GetCart(ctx context.Context, ownerID string) (*models.Cart, error) {
	if s.cache != nil {
		c, err := s.cache.GetCart(ctx, ownerID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cart cache read failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}

	var out *models.Cart
	err := s.locker.WithLock(ctx, serial.CartKey(ownerID), func(ctx context.Context) error {
		c, err := s.loadOrCreate(ctx, ownerID)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, out)
	return out, nil
}

func (s *Service) AddItem(ctx context.Context, ownerID, productID string, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, apperr.New(apperr.KindValidation, "quantity must be at least 1")
	}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, ownerID, func(c *models.Cart, now time.Time) error {
		return s.engine.AddItem(c, p, quantity, now)
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, ownerID, productID string, quantity int) (*models.Cart, error) {
	return s.mutate(ctx, ownerID, func(c *models.Cart, now time.Time) error {
		return s.engine.UpdateQuantity(c, productID, quantity, now)
	})
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, productID string) (*models.Cart, error) {
	return s.mutate(ctx, ownerID, func(c *models.Cart, now time.Time) error {
		s.engine.RemoveItem(c, productID, now)
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, ownerID string) (*models.Cart, error) {
	return s.mutate(ctx, ownerID, func(c *models.Cart, now time.Time) error {
		s.engine.Clear(c, now)
		return nil
	})
}

// ApplyCoupon applies code to the owner's cart, replacing any earlier coupon.
func (s *Service) ApplyCoupon(ctx context.Context, ownerID, code string) (*models.Cart, error) {
	o, err := s.offers.Redeemable(ctx, code, ownerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, ownerID, func(c *models.Cart, now time.Time) error {
		s.engine.ApplyCoupon(c, o, now)
		return nil
	})
}

func (s *Service) RemoveCoupon(ctx context.Context, ownerID string) (*models.Cart, error) {
	return s.mutate(ctx, ownerID, func(c *models.Cart, now time.Time) error {
		s.engine.RemoveCoupon(c, now)
		return nil
	})
}

// Exclusive runs fn inside the owner's critical section with the stored cart,
// or nil when the owner has none. fn must not call other Service methods for
// the same owner.
func (s *Service) Exclusive(ctx context.Context, ownerID string, fn func(ctx context.Context, c *models.Cart) error) error {
	return s.locker.WithLock(ctx, serial.CartKey(ownerID), func(ctx context.Context) error {
		c, err := s.store.GetCart(ctx, ownerID)
		if errors.Is(err, apperr.ErrNotFound) {
			return fn(ctx, nil)
		}
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		return fn(ctx, c)
	})
}

// ClearLocked empties and persists c. Only valid inside Exclusive.
func (s *Service) ClearLocked(ctx context.Context, c *models.Cart) error {
	s.engine.Clear(c, s.clock())
	if err := s.store.SaveCart(ctx, c); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.refreshCache(ctx, c)
	return nil
}

func (s *Service) mutate(ctx context.Context, ownerID string, fn func(c *models.Cart, now time.Time) error) (*models.Cart, error) {
	var out *models.Cart
	err := s.locker.WithLock(ctx, serial.CartKey(ownerID), func(ctx context.Context) error {
		c, err := s.loadOrCreate(ctx, ownerID)
		if err != nil {
			return err
		}
		if err := fn(c, s.clock()); err != nil {
			return err
		}
		if err := s.store.SaveCart(ctx, c); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, out)
	return out, nil
}

func (s *Service) loadOrCreate(ctx context.Context, ownerID string) (*models.Cart, error) {
	c, err := s.store.GetCart(ctx, ownerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	now := s.clock()
	c = &models.Cart{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Lines:     []models.CartLine{},
		CreatedAt: now,
	}
	s.engine.Recalculate(c, now)
	if err := s.store.CreateCart(ctx, c); err != nil {
		// Another process created it first.
		if errors.Is(err, apperr.ErrConflict) {
			return s.store.GetCart(ctx, ownerID)
		}
		return nil, fmt.Errorf("create cart: %w", err)
	}
	s.logger.Debug("cart created", zap.String("owner_id", ownerID))
	return c, nil
}

func (s *Service) refreshCache(ctx context.Context, c *models.Cart) {
	if s.cache == nil || c == nil {
		return
	}
	if err := s.cache.SetCart(ctx, c); err != nil {
		s.logger.Warn("cart cache write failed", zap.String("owner_id", c.OwnerID), zap.Error(err))
		if err := s.cache.DeleteCart(ctx, c.OwnerID); err != nil {
			s.logger.Warn("cart cache evict failed", zap.String("owner_id", c.OwnerID), zap.Error(err))
		}
	}
}
