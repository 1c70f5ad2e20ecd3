package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store persists offers. FindActiveByCode expects an already normalized code.
// RecordUsage must be atomic against the total usage limit and fail with
// apperr.ErrExpired when the limit is reached.
type Store interface {
	CreateOffer(ctx context.Context, o *models.Offer) error
	UpdateOffer(ctx context.Context, o *models.Offer) error
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	FindActiveByCode(ctx context.Context, code string) (*models.Offer, error)
	ListOffers(ctx context.Context, f Filter) ([]*models.Offer, int64, error)
	ListActiveOffers(ctx context.Context, now time.Time) ([]*models.Offer, error)
	RecordUsage(ctx context.Context, offerID string, usage models.OfferUsage) error
	RevertUsage(ctx context.Context, offerID, orderID string) error
}

type Filter struct {
	Type     models.OfferType
	IsActive *bool
	Page     int
	Limit    int
}

// Normalize fills paging defaults.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	return f
}

// Input carries the admin-editable fields of an offer.
type Input struct {
	Name            string           `json:"name"`
	Code            string           `json:"code"`
	Description     string           `json:"description"`
	Type            models.OfferType `json:"type"`
	Value           decimal.Decimal  `json:"value"`
	MinimumPurchase decimal.Decimal  `json:"minimum_purchase"`
	MaximumDiscount *decimal.Decimal `json:"maximum_discount"`
	PerUser         *int             `json:"per_user"`
	TotalLimit      *int             `json:"total_limit"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	IsActive        *bool            `json:"is_active"`
}

type Service struct {
	store  Store
	logger *zap.Logger
	clock  func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger.Named("offer"),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) Create(ctx context.Context, actor models.Identity, in Input) (*models.Offer, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "only admins can create offers")
	}
	now := s.clock()
	o := &models.Offer{
		ID:         uuid.NewString(),
		IsActive:   true,
		UsageLimit: models.UsageLimit{PerUser: 1},
		CreatedBy:  actor.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	apply(o, in)
	if err := Validate(o); err != nil {
		return nil, err
	}
	if err := s.store.CreateOffer(ctx, o); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Wrap(apperr.KindValidation, err, "offer code %s already exists", o.Code)
		}
		return nil, fmt.Errorf("create offer: %w", err)
	}
	s.logger.Info("offer created", zap.String("offer_id", o.ID), zap.String("code", o.Code))
	return o, nil
}

// Update replaces the editable fields. Usage counters are never touched here.
func (s *Service) Update(ctx context.Context, actor models.Identity, id string, in Input) (*models.Offer, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "only admins can update offers")
	}
	o, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(o, in)
	o.UpdatedAt = s.clock()
	if err := Validate(o); err != nil {
		return nil, err
	}
	if err := s.store.UpdateOffer(ctx, o); err != nil {
		return nil, fmt.Errorf("update offer: %w", err)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Offer, error) {
	return s.store.GetOffer(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*models.Offer, int64, error) {
	return s.store.ListOffers(ctx, f.Normalize())
}

// ListActive returns offers a customer could redeem right now.
func (s *Service) ListActive(ctx context.Context) ([]*models.Offer, error) {
	now := s.clock()
	offers, err := s.store.ListActiveOffers(ctx, now)
	if err != nil {
		return nil, err
	}
	out := offers[:0]
	for _, o := range offers {
		if IsValid(o, now) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Deactivate soft-deletes an offer.
func (s *Service) Deactivate(ctx context.Context, actor models.Identity, id string) error {
	if !actor.IsAdmin() {
		return apperr.New(apperr.KindUnauthorized, "only admins can delete offers")
	}
	o, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return err
	}
	o.IsActive = false
	o.UpdatedAt = s.clock()
	if err := s.store.UpdateOffer(ctx, o); err != nil {
		return fmt.Errorf("deactivate offer: %w", err)
	}
	s.logger.Info("offer deactivated", zap.String("offer_id", id), zap.String("by", actor.UserID))
	return nil
}

func (s *Service) FindActiveByCode(ctx context.Context, code string) (*models.Offer, error) {
	return s.store.FindActiveByCode(ctx, NormalizeCode(code))
}

// Redeemable resolves code for userID, failing with InvalidCoupon, Expired or
// AlreadyUsed.
func (s *Service) Redeemable(ctx context.Context, code, userID string) (*models.Offer, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.New(apperr.KindInvalidCoupon, "invalid coupon code")
	}
	o, err := s.store.FindActiveByCode(ctx, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.New(apperr.KindInvalidCoupon, "invalid coupon code %s", code)
	}
	if err != nil {
		return nil, err
	}
	if err := Eligibility(o, userID, s.clock()); err != nil {
		return nil, err
	}
	return o, nil
}

func apply(o *models.Offer, in Input) {
	o.Name = in.Name
	o.Code = NormalizeCode(in.Code)
	o.Description = in.Description
	o.Type = in.Type
	o.Value = in.Value
	o.MinimumPurchase = in.MinimumPurchase
	o.MaximumDiscount = in.MaximumDiscount
	if in.PerUser != nil {
		o.UsageLimit.PerUser = *in.PerUser
	}
	o.UsageLimit.Total = in.TotalLimit
	o.Validity = models.Validity{StartDate: in.StartDate.UTC(), EndDate: in.EndDate.UTC()}
	if in.IsActive != nil {
		o.IsActive = *in.IsActive
	}
}
