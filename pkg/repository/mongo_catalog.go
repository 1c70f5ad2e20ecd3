package repository

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoRepository) PutProduct(ctx context.Context, p *models.Product) error {
	_, err := m.collection(productsCollection).ReplaceOne(ctx,
		bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put product %s: %w", p.ID, err)
	}
	return nil
}

func (m *MongoRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := m.collection(productsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		return nil, notFoundOr(err, "product %s not found", id)
	}
	return &p, nil
}

// ReserveStock decrements tracked stock and counts the purchase in a single
// conditional update, so two checkouts can never both take the last unit.
func (m *MongoRepository) ReserveStock(ctx context.Context, productID string, quantity int) error {
	filter := bson.M{
		"_id": productID,
		"$or": bson.A{
			bson.M{"inventory.track_inventory": false},
			bson.M{"inventory.allow_backorder": true},
			bson.M{"inventory.quantity": bson.M{"$gte": quantity}},
		},
	}
	res, err := m.collection(productsCollection).UpdateOne(ctx, filter, stockPipeline(-quantity))
	if err != nil {
		return fmt.Errorf("reserve stock for %s: %w", productID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	return apperr.New(apperr.KindOutOfStock, "product %s is out of stock", p.Name)
}

func (m *MongoRepository) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	res, err := m.collection(productsCollection).UpdateOne(ctx,
		bson.M{"_id": productID}, stockPipeline(quantity))
	if err != nil {
		return fmt.Errorf("release stock for %s: %w", productID, err)
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.KindNotFound, "product %s not found", productID)
	}
	return nil
}

// stockPipeline moves delta units into tracked stock and the opposite amount
// into the purchase counter, which never drops below zero.
func stockPipeline(delta int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "inventory.quantity", Value: bson.D{{Key: "$cond", Value: bson.A{
				"$inventory.track_inventory",
				bson.D{{Key: "$add", Value: bson.A{"$inventory.quantity", delta}}},
				"$inventory.quantity",
			}}}},
			{Key: "metadata.purchases", Value: bson.D{{Key: "$max", Value: bson.A{
				0,
				bson.D{{Key: "$subtract", Value: bson.A{
					bson.D{{Key: "$ifNull", Value: bson.A{"$metadata.purchases", 0}}},
					delta,
				}}},
			}}}},
		}}},
	}
}

// Carts

func (m *MongoRepository) GetCart(ctx context.Context, ownerID string) (*models.Cart, error) {
	var c models.Cart
	err := m.collection(cartsCollection).FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&c)
	if err != nil {
		return nil, notFoundOr(err, "cart not found")
	}
	return &c, nil
}

func (m *MongoRepository) CreateCart(ctx context.Context, c *models.Cart) error {
	_, err := m.collection(cartsCollection).InsertOne(ctx, c)
	return mapWriteError(err, "create cart for %s", c.OwnerID)
}

// SaveCart replaces the cart only when the stored version still matches.
func (m *MongoRepository) SaveCart(ctx context.Context, c *models.Cart) error {
	next := *c
	next.Version++
	res, err := m.collection(cartsCollection).ReplaceOne(ctx,
		bson.M{"owner_id": c.OwnerID, "version": c.Version}, &next)
	if err != nil {
		return mapWriteError(err, "save cart for %s", c.OwnerID)
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetCart(ctx, c.OwnerID); err != nil {
			return err
		}
		return apperr.New(apperr.KindConflict, "cart was modified concurrently")
	}
	c.Version = next.Version
	return nil
}
