package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/offer"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetCart(ctx context.Context, ownerID string) (*models.Cart, error) {
	args := m.Called(ctx, ownerID)
	c, _ := args.Get(0).(*models.Cart)
	return c, args.Error(1)
}

func (m *mockCache) SetCart(ctx context.Context, c *models.Cart) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCache) DeleteCart(ctx context.Context, ownerID string) error {
	return m.Called(ctx, ownerID).Error(0)
}

func setup(t *testing.T, cache cart.Cache) (*cart.Service, *repository.MemoryRepository, *offer.Service) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.PutProduct(ctx, &models.Product{
		ID:          "p1",
		Name:        "Keyboard",
		Price:       money.MustParse("100"),
		ProductType: models.ProductPhysical,
		IsActive:    true,
		Inventory:   models.Inventory{Quantity: 10, TrackInventory: true},
	}))
	locker := serial.NewSerializer(nil)
	t.Cleanup(locker.Close)

	offers := offer.NewService(repo, nil).WithClock(clock)
	svc := cart.NewService(cart.Deps{
		Store:   repo,
		Catalog: repo,
		Offers:  offers,
		Cache:   cache,
		Locker:  locker,
		Policy:  cart.PricingPolicy{TaxRate: money.MustParse("0.10"), Shipping: money.Zero},
		Clock:   clock,
	})
	return svc, repo, offers
}

func TestGetCartCreatesLazily(t *testing.T) {
	svc, repo, _ := setup(t, nil)
	ctx := context.Background()

	_, err := repo.GetCart(ctx, "u1")
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	c, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.OwnerID)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, now.Add(cart.DefaultTTL), c.ExpiresAt)

	again, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
}

func TestMutationsPersistWithVersion(t *testing.T) {
	svc, repo, _ := setup(t, nil)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)

	c, err = svc.UpdateQuantity(ctx, "u1", "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)
	assert.Equal(t, "330", c.Total.String())

	stored, err := repo.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c.Version, stored.Version)

	stale := *stored
	stale.Version = 1
	assert.True(t, errors.Is(repo.SaveCart(ctx, &stale), apperr.ErrConflict))

	c, err = svc.RemoveItem(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc, _, _ := setup(t, nil)
	_, err := svc.AddItem(context.Background(), "u1", "nope", 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = svc.AddItem(context.Background(), "u1", "p1", 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestApplyCouponErrors(t *testing.T) {
	svc, _, offers := setup(t, nil)
	ctx := context.Background()
	admin := models.Identity{UserID: "admin", Role: models.RoleAdmin}

	_, err := svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	_, err = svc.ApplyCoupon(ctx, "u1", "missing")
	assert.True(t, errors.Is(err, apperr.ErrInvalidCoupon))

	_, err = offers.Create(ctx, admin, offer.Input{
		Name: "Old", Code: "old", Type: models.OfferFixedAmount, Value: money.MustParse("5"),
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = svc.ApplyCoupon(ctx, "u1", "OLD")
	assert.True(t, errors.Is(err, apperr.ErrExpired))

	inactive := false
	_, err = offers.Create(ctx, admin, offer.Input{
		Name: "Off", Code: "off", Type: models.OfferFixedAmount, Value: money.MustParse("5"),
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), IsActive: &inactive,
	})
	require.NoError(t, err)
	_, err = svc.ApplyCoupon(ctx, "u1", "off")
	assert.True(t, errors.Is(err, apperr.ErrInvalidCoupon))

	_, err = offers.Create(ctx, admin, offer.Input{
		Name: "Five", Code: " five ", Type: models.OfferFixedAmount, Value: money.MustParse("5"),
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
	})
	require.NoError(t, err)
	c, err := svc.ApplyCoupon(ctx, "u1", "Five")
	require.NoError(t, err)
	assert.Equal(t, "FIVE", c.CouponCode)
	assert.Equal(t, "5", c.CouponDiscount.String())
	assert.Equal(t, "105", c.Total.String())

	c, err = svc.RemoveCoupon(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "110", c.Total.String())
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	svc, _, _ := setup(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, "u1", "p1", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 20, c.Lines[0].Quantity)
	assert.Equal(t, int64(20), c.Version)
}

func TestCacheIsReadThroughAndNonFatal(t *testing.T) {
	cache := new(mockCache)
	svc, _, _ := setup(t, cache)
	ctx := context.Background()

	cached := &models.Cart{OwnerID: "u2", Lines: []models.CartLine{}}
	cache.On("GetCart", mock.Anything, "u2").Return(cached, nil).Once()
	got, err := svc.GetCart(ctx, "u2")
	require.NoError(t, err)
	assert.Same(t, cached, got)

	cache.On("SetCart", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	cache.On("DeleteCart", mock.Anything, "u1").Return(errors.New("redis down")).Once()
	c, err := svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)

	cache.On("GetCart", mock.Anything, "u1").Return(nil, cart.ErrCacheMiss).Once()
	cache.On("SetCart", mock.Anything, mock.Anything).Return(nil).Once()
	c, err = svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)

	cache.AssertExpectations(t)
}
