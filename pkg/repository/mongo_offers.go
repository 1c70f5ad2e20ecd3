package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/offer"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoRepository) CreateOffer(ctx context.Context, o *models.Offer) error {
	if o.UsedBy == nil {
		o.UsedBy = []models.OfferUsage{}
	}
	_, err := m.collection(offersCollection).InsertOne(ctx, o)
	return mapWriteError(err, "create offer %s", o.Code)
}

// UpdateOffer rewrites the editable fields. Usage counters are left to
// RecordUsage and RevertUsage.
func (m *MongoRepository) UpdateOffer(ctx context.Context, o *models.Offer) error {
	update := bson.M{"$set": bson.M{
		"name":             o.Name,
		"code":             o.Code,
		"description":      o.Description,
		"type":             o.Type,
		"value":            o.Value,
		"minimum_purchase": o.MinimumPurchase,
		"maximum_discount": o.MaximumDiscount,
		"usage_limit":      o.UsageLimit,
		"validity":         o.Validity,
		"is_active":        o.IsActive,
		"updated_at":       o.UpdatedAt,
	}}
	res, err := m.collection(offersCollection).UpdateOne(ctx, bson.M{"_id": o.ID}, update)
	if err != nil {
		return mapWriteError(err, "update offer %s", o.ID)
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.KindNotFound, "offer %s not found", o.ID)
	}
	return nil
}

func (m *MongoRepository) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var o models.Offer
	err := m.collection(offersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		return nil, notFoundOr(err, "offer %s not found", id)
	}
	return &o, nil
}

func (m *MongoRepository) FindActiveByCode(ctx context.Context, code string) (*models.Offer, error) {
	var o models.Offer
	err := m.collection(offersCollection).
		FindOne(ctx, bson.M{"code": code, "is_active": true}).
		Decode(&o)
	if err != nil {
		return nil, notFoundOr(err, "offer %s not found", code)
	}
	return &o, nil
}

func (m *MongoRepository) ListOffers(ctx context.Context, f offer.Filter) ([]*models.Offer, int64, error) {
	f = f.Normalize()
	filter := bson.M{}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.IsActive != nil {
		filter["is_active"] = *f.IsActive
	}

	coll := m.collection(offersCollection)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count offers: %w", err)
	}
	opts := pageOptions(f.Page, f.Limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list offers: %w", err)
	}
	defer cursor.Close(ctx)

	offers := []*models.Offer{}
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, 0, fmt.Errorf("decode offers: %w", err)
	}
	return offers, total, nil
}

func (m *MongoRepository) ListActiveOffers(ctx context.Context, now time.Time) ([]*models.Offer, error) {
	filter := bson.M{
		"is_active":           true,
		"validity.start_date": bson.M{"$lte": now},
		"validity.end_date":   bson.M{"$gte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "validity.end_date", Value: 1}})
	cursor, err := m.collection(offersCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list active offers: %w", err)
	}
	defer cursor.Close(ctx)

	offers := []*models.Offer{}
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}
	return offers, nil
}

// RecordUsage appends usage and bumps the counter only while the total limit
// has room.
func (m *MongoRepository) RecordUsage(ctx context.Context, offerID string, usage models.OfferUsage) error {
	filter := bson.M{
		"_id": offerID,
		"$or": bson.A{
			bson.M{"usage_limit.total": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usage_count", "$usage_limit.total"}}},
		},
	}
	update := bson.M{
		"$inc":  bson.M{"usage_count": 1},
		"$push": bson.M{"used_by": usage},
	}
	res, err := m.collection(offersCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("record usage of %s: %w", offerID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	o, err := m.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	return apperr.New(apperr.KindExpired, "coupon %s usage limit reached", o.Code)
}

// RevertUsage removes the usage recorded for orderID. Reverting twice is a no-op.
func (m *MongoRepository) RevertUsage(ctx context.Context, offerID, orderID string) error {
	filter := bson.M{"_id": offerID, "used_by.order_id": orderID}
	update := bson.M{
		"$inc":  bson.M{"usage_count": -1},
		"$pull": bson.M{"used_by": bson.M{"order_id": orderID}},
	}
	if _, err := m.collection(offersCollection).UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("revert usage of %s: %w", offerID, err)
	}
	return nil
}
