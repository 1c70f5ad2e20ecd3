package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/offer"
	"github.com/example/storefront/pkg/order"
)

// MemoryRepository keeps every collection in process memory. It honours the
// same atomicity and versioning contracts as MongoRepository and backs tests
// and single-node development runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]*models.Product
	carts    map[string]*models.Cart
	offers   map[string]*models.Offer
	orders   map[string]*models.Order
	counters map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[string]*models.Product),
		carts:    make(map[string]*models.Cart),
		offers:   make(map[string]*models.Offer),
		orders:   make(map[string]*models.Order),
		counters: make(map[string]int64),
	}
}

// Products

func (m *MemoryRepository) PutProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = cloneProduct(p)
	return nil
}

func (m *MemoryRepository) GetProduct(_ context.Context, id string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "product %s not found", id)
	}
	return cloneProduct(p), nil
}

func (m *MemoryRepository) ReserveStock(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "product %s not found", productID)
	}
	inv := &p.Inventory
	if inv.TrackInventory {
		if inv.Quantity < quantity && !inv.AllowBackorder {
			return apperr.New(apperr.KindOutOfStock, "product %s is out of stock", p.Name)
		}
		inv.Quantity -= quantity
	}
	p.Metadata.Purchases += quantity
	return nil
}

func (m *MemoryRepository) ReleaseStock(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "product %s not found", productID)
	}
	if p.Inventory.TrackInventory {
		p.Inventory.Quantity += quantity
	}
	p.Metadata.Purchases -= quantity
	if p.Metadata.Purchases < 0 {
		p.Metadata.Purchases = 0
	}
	return nil
}

// Carts

func (m *MemoryRepository) GetCart(_ context.Context, ownerID string) (*models.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "cart not found")
	}
	return cloneCart(c), nil
}

func (m *MemoryRepository) CreateCart(_ context.Context, c *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[c.OwnerID]; ok {
		return apperr.New(apperr.KindConflict, "cart for %s already exists", c.OwnerID)
	}
	m.carts[c.OwnerID] = cloneCart(c)
	return nil
}

func (m *MemoryRepository) SaveCart(_ context.Context, c *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.carts[c.OwnerID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "cart not found")
	}
	if cur.Version != c.Version {
		return apperr.New(apperr.KindConflict, "cart was modified concurrently")
	}
	c.Version++
	m.carts[c.OwnerID] = cloneCart(c)
	return nil
}

// Offers

func (m *MemoryRepository) CreateOffer(_ context.Context, o *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.offers {
		if existing.Code == o.Code {
			return apperr.New(apperr.KindConflict, "offer code %s already exists", o.Code)
		}
	}
	m.offers[o.ID] = cloneOffer(o)
	return nil
}

func (m *MemoryRepository) UpdateOffer(_ context.Context, o *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.offers[o.ID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "offer %s not found", o.ID)
	}
	for id, existing := range m.offers {
		if id != o.ID && existing.Code == o.Code {
			return apperr.New(apperr.KindConflict, "offer code %s already exists", o.Code)
		}
	}
	next := cloneOffer(o)
	// Usage is owned by RecordUsage/RevertUsage.
	next.UsageCount = cur.UsageCount
	next.UsedBy = cur.UsedBy
	m.offers[o.ID] = next
	return nil
}

func (m *MemoryRepository) GetOffer(_ context.Context, id string) (*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "offer %s not found", id)
	}
	return cloneOffer(o), nil
}

func (m *MemoryRepository) FindActiveByCode(_ context.Context, code string) (*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.offers {
		if o.Code == code && o.IsActive {
			return cloneOffer(o), nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "offer %s not found", code)
}

func (m *MemoryRepository) ListOffers(_ context.Context, f offer.Filter) ([]*models.Offer, int64, error) {
	f = f.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*models.Offer
	for _, o := range m.offers {
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if f.IsActive != nil && o.IsActive != *f.IsActive {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	page := paginate(matched, f.Page, f.Limit)
	out := make([]*models.Offer, 0, len(page))
	for _, o := range page {
		out = append(out, cloneOffer(o))
	}
	return out, int64(len(matched)), nil
}

func (m *MemoryRepository) ListActiveOffers(_ context.Context, now time.Time) ([]*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Offer{}
	for _, o := range m.offers {
		if o.IsActive && !now.Before(o.Validity.StartDate) && !now.After(o.Validity.EndDate) {
			out = append(out, cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Validity.EndDate.Before(out[j].Validity.EndDate) })
	return out, nil
}

func (m *MemoryRepository) RecordUsage(_ context.Context, offerID string, usage models.OfferUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "offer %s not found", offerID)
	}
	if o.UsageLimit.Total != nil && o.UsageCount >= *o.UsageLimit.Total {
		return apperr.New(apperr.KindExpired, "coupon %s usage limit reached", o.Code)
	}
	o.UsageCount++
	o.UsedBy = append(o.UsedBy, usage)
	return nil
}

func (m *MemoryRepository) RevertUsage(_ context.Context, offerID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "offer %s not found", offerID)
	}
	for i, u := range o.UsedBy {
		if u.OrderID == orderID {
			o.UsedBy = append(o.UsedBy[:i], o.UsedBy[i+1:]...)
			o.UsageCount--
			return nil
		}
	}
	return nil
}

// Orders

func (m *MemoryRepository) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.OrderNumber == o.OrderNumber {
			return apperr.New(apperr.KindConflict, "order number %s already exists", o.OrderNumber)
		}
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MemoryRepository) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "order %s not found", id)
	}
	return cloneOrder(o), nil
}

func (m *MemoryRepository) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "order %s not found", number)
}

func (m *MemoryRepository) SaveOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order %s not found", o.OrderNumber)
	}
	if cur.Version != o.Version {
		return apperr.New(apperr.KindConflict, "order %s was modified concurrently", o.OrderNumber)
	}
	o.Version++
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MemoryRepository) ListOrders(_ context.Context, f order.Filter) ([]*models.Order, int64, error) {
	f = f.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*models.Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].OrderNumber > matched[j].OrderNumber
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	page := paginate(matched, f.Page, f.Limit)
	out := make([]*models.Order, 0, len(page))
	for _, o := range page {
		out = append(out, cloneOrder(o))
	}
	return out, int64(len(matched)), nil
}

// Counters

func (m *MemoryRepository) NextSequence(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
	return m.counters[name], nil
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func cloneProduct(p *models.Product) *models.Product {
	cp := *p
	if p.DigitalContent != nil {
		dc := *p.DigitalContent
		cp.DigitalContent = &dc
	}
	return &cp
}

func cloneCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Lines = append([]models.CartLine{}, c.Lines...)
	if c.Coupon != nil {
		coupon := *c.Coupon
		cp.Coupon = &coupon
	}
	return &cp
}

func cloneOffer(o *models.Offer) *models.Offer {
	cp := *o
	cp.UsedBy = append([]models.OfferUsage{}, o.UsedBy...)
	return &cp
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem{}, o.Items...)
	cp.StatusHistory = append([]models.StatusChange{}, o.StatusHistory...)
	return &cp
}
