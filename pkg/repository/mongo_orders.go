package repository

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoRepository) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := m.collection(ordersCollection).InsertOne(ctx, o)
	return mapWriteError(err, "create order %s", o.OrderNumber)
}

func (m *MongoRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := m.collection(ordersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		return nil, notFoundOr(err, "order %s not found", id)
	}
	return &o, nil
}

func (m *MongoRepository) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var o models.Order
	err := m.collection(ordersCollection).FindOne(ctx, bson.M{"order_number": number}).Decode(&o)
	if err != nil {
		return nil, notFoundOr(err, "order %s not found", number)
	}
	return &o, nil
}

// SaveOrder replaces the order only when the stored version still matches.
func (m *MongoRepository) SaveOrder(ctx context.Context, o *models.Order) error {
	next := *o
	next.Version++
	res, err := m.collection(ordersCollection).ReplaceOne(ctx,
		bson.M{"_id": o.ID, "version": o.Version}, &next)
	if err != nil {
		return mapWriteError(err, "save order %s", o.OrderNumber)
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return apperr.New(apperr.KindConflict, "order %s was modified concurrently", o.OrderNumber)
	}
	o.Version = next.Version
	return nil
}

func (m *MongoRepository) ListOrders(ctx context.Context, f order.Filter) ([]*models.Order, int64, error) {
	f = f.Normalize()
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	coll := m.collection(ordersCollection)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	opts := pageOptions(f.Page, f.Limit).SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "order_number", Value: -1},
	})
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []*models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return orders, total, nil
}

// NextSequence atomically increments the named counter, creating it on first use.
func (m *MongoRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := m.collection(countersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).
		Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return counter.Seq, nil
}
