package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/domain"
)

type lowStockDoc struct {
	ID         string    `bson:"_id"`
	ProductID  string    `bson:"product_id"`
	StockAfter int       `bson:"stock_after"`
	Threshold  int       `bson:"threshold"`
	Processed  bool      `bson:"processed"`
	CreatedAt  time.Time `bson:"created_at"`
}

// LowStockSignalRepository is a MongoDB-backed implementation of
// domain.LowStockSignalRepository, the durable record of a signal
// alongside the best-effort Kafka publish.
type LowStockSignalRepository struct {
	collection *mongo.Collection
}

// NewLowStockSignalRepository constructs a LowStockSignalRepository
// against conn's low_stock_signals collection.
func NewLowStockSignalRepository(conn *platformmongo.Connection) *LowStockSignalRepository {
	return &LowStockSignalRepository{collection: conn.Collection(lowStockCollection)}
}

// Insert persists a newly raised signal.
func (r *LowStockSignalRepository) Insert(ctx context.Context, s *domain.LowStockSignal) error {
	doc := lowStockDoc{
		ID:         s.ID,
		ProductID:  s.ProductID,
		StockAfter: s.StockAfter,
		Threshold:  s.Threshold,
		Processed:  s.Processed,
		CreatedAt:  s.CreatedAt,
	}
	_, err := r.collection.InsertOne(ctx, doc)
	return err
}
