package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/domain"
)

// productDoc is the on-disk shape of a Product. Kept separate from the
// domain struct so storage concerns (bson tags, _id) never leak upward.
type productDoc struct {
	ID                string    `bson:"_id"`
	SKU               string    `bson:"sku"`
	Name              string    `bson:"name"`
	UnitPrice         int64     `bson:"unit_price"`
	Stock             int       `bson:"stock"`
	Reserved          int       `bson:"reserved"`
	LowStockThreshold int       `bson:"low_stock_threshold"`
	Image             string    `bson:"image"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func (d *productDoc) toDomain() *domain.Product {
	return &domain.Product{
		ID:                d.ID,
		SKU:               d.SKU,
		Name:              d.Name,
		UnitPrice:         d.UnitPrice,
		Stock:             d.Stock,
		Reserved:          d.Reserved,
		LowStockThreshold: d.LowStockThreshold,
		Image:             d.Image,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// ProductRepository is the Inventory Store: a MongoDB-backed
// implementation of domain.InventoryRepository where every mutating
// method is a single conditional UpdateOne, never a read-modify-write.
type ProductRepository struct {
	collection *mongo.Collection
}

// NewProductRepository constructs a ProductRepository against conn's
// products collection.
func NewProductRepository(conn *platformmongo.Connection) *ProductRepository {
	return &ProductRepository{collection: conn.Collection(productsCollection)}
}

// Read returns the current counters for a product.
func (r *ProductRepository) Read(ctx context.Context, productID string) (*domain.Product, error) {
	var doc productDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

// TryIncrementReserved atomically increments reserved by n only if
// enough stock is actually available: the filter itself encodes
// "(stock - reserved) >= n", so a matched document is proof the guard
// held at the instant Mongo applied the update.
func (r *ProductRepository) TryIncrementReserved(ctx context.Context, productID string, n int) error {
	filter := bson.M{
		"_id": productID,
		"$expr": bson.M{
			"$gte": []interface{}{
				bson.M{"$subtract": []string{"$stock", "$reserved"}},
				n,
			},
		},
	}
	update := bson.M{
		"$inc": bson.M{"reserved": n},
		"$set": bson.M{"updated_at": nowFunc()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return r.classifyMissOrInsufficient(ctx, productID)
	}
	return nil
}

// TryCommit performs the guarded decrement confirm requires: both
// reserved and stock must cover n, enforced by plain $gte conditions on
// the two fields in the update filter.
func (r *ProductRepository) TryCommit(ctx context.Context, productID string, n int) (int, int, error) {
	filter := bson.M{
		"_id":      productID,
		"reserved": bson.M{"$gte": n},
		"stock":    bson.M{"$gte": n},
	}
	update := bson.M{
		"$inc": bson.M{"reserved": -n, "stock": -n},
		"$set": bson.M{"updated_at": nowFunc()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, 0, err
	}
	if result.MatchedCount == 0 {
		return 0, 0, r.classifyMissOrInsufficient(ctx, productID)
	}

	var doc productDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc); err != nil {
		return 0, 0, err
	}
	return doc.Stock, doc.LowStockThreshold, nil
}

// ReleaseReserved guards reserved from going negative, used by the
// sweeper when expiring a hold.
func (r *ProductRepository) ReleaseReserved(ctx context.Context, productID string, n int) error {
	filter := bson.M{
		"_id":      productID,
		"reserved": bson.M{"$gte": n},
	}
	update := bson.M{
		"$inc": bson.M{"reserved": -n},
		"$set": bson.M{"updated_at": nowFunc()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return r.classifyMissOrInsufficient(ctx, productID)
	}
	return nil
}

// classifyMissOrInsufficient distinguishes "product doesn't exist" from
// "guard condition failed" after an UpdateOne matches zero documents,
// since the filter alone can't tell the two apart.
func (r *ProductRepository) classifyMissOrInsufficient(ctx context.Context, productID string) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": productID})
	if err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}

func nowFunc() time.Time { return time.Now().UTC() }
