package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/domain"
)

type cartLineDoc struct {
	ProductID string `bson:"product_id"`
	Quantity  int    `bson:"quantity"`
}

type cartDoc struct {
	CallerID string        `bson:"caller_id"`
	Lines    []cartLineDoc `bson:"lines"`
}

// CartRepository is a MongoDB-backed implementation of
// domain.CartRepository, the minimal supplemental store reserve reads
// from and confirm clears.
type CartRepository struct {
	collection *mongo.Collection
}

// NewCartRepository constructs a CartRepository against conn's carts
// collection.
func NewCartRepository(conn *platformmongo.Connection) *CartRepository {
	return &CartRepository{collection: conn.Collection(cartsCollection)}
}

// FindByCallerID returns the caller's current cart, or
// domain.ErrEmptyCart if none exists.
func (r *CartRepository) FindByCallerID(ctx context.Context, callerID string) (*domain.Cart, error) {
	var doc cartDoc
	err := r.collection.FindOne(ctx, bson.M{"caller_id": callerID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, domain.CartLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	return &domain.Cart{CallerID: doc.CallerID, Lines: lines}, nil
}

// DeleteByCallerID removes the caller's cart, used by confirm once the
// order has been created.
func (r *CartRepository) DeleteByCallerID(ctx context.Context, callerID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"caller_id": callerID})
	return err
}
