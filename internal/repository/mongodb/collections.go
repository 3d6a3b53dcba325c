package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
)

// Collection names for the checkout core's six persistence concerns.
const (
	productsCollection     = "products"
	reservationsCollection = "reservations"
	ordersCollection       = "orders"
	idempotencyCollection  = "idempotency_records"
	lowStockCollection     = "low_stock_signals"
	cartsCollection        = "carts"
)

// EnsureIndexes creates every index the repositories in this package
// depend on for correctness (uniqueness constraints, conditional
// updates) and performance. It is safe to call on every startup;
// CreateMany is idempotent for already-existing index specs.
func EnsureIndexes(ctx context.Context, conn *platformmongo.Connection) error {
	if err := conn.CreateIndexes(ctx, productsCollection, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("sku_unique"),
		},
	}); err != nil {
		return err
	}

	if err := conn.CreateIndexes(ctx, reservationsCollection, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "state", Value: 1}, {Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("state_expiry"),
		},
		{
			Keys:    bson.D{{Key: "caller_id", Value: 1}, {Key: "state", Value: 1}},
			Options: options.Index().SetName("caller_state"),
		},
	}); err != nil {
		return err
	}

	if err := conn.CreateIndexes(ctx, ordersCollection, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "caller_id", Value: 1}},
			Options: options.Index().SetName("caller_id_index"),
		},
	}); err != nil {
		return err
	}

	if err := conn.CreateIndexes(ctx, idempotencyCollection, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "caller_id", Value: 1},
				{Key: "endpoint", Value: 1},
				{Key: "token", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("caller_endpoint_token_unique"),
		},
	}); err != nil {
		return err
	}

	if err := conn.CreateIndexes(ctx, lowStockCollection, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "processed", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("processed_created"),
		},
	}); err != nil {
		return err
	}

	if err := conn.CreateIndexes(ctx, cartsCollection, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "caller_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("caller_id_unique"),
		},
	}); err != nil {
		return err
	}

	return nil
}
