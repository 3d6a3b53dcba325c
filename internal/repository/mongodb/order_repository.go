package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/domain"
)

type orderDoc struct {
	ID             string            `bson:"_id"`
	CallerID       string            `bson:"caller_id"`
	State          string            `bson:"state"`
	Lines          []lineSnapshotDoc `bson:"lines"`
	Address        addressDoc        `bson:"address"`
	ShippingMethod string            `bson:"shipping_method"`
	Total          int64             `bson:"total"`
	CreatedAt      time.Time         `bson:"created_at"`
}

func orderToDoc(o *domain.Order) *orderDoc {
	lines := make([]lineSnapshotDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineSnapshotDoc{
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	return &orderDoc{
		ID:       o.ID,
		CallerID: o.CallerID,
		State:    string(o.State),
		Lines:    lines,
		Address: addressDoc{
			Name:    o.Address.Name,
			Phone:   o.Address.Phone,
			Line1:   o.Address.Line1,
			City:    o.Address.City,
			State:   o.Address.State,
			Pincode: o.Address.Pincode,
		},
		ShippingMethod: o.ShippingMethod,
		Total:          o.Total,
		CreatedAt:      o.CreatedAt,
	}
}

func (d *orderDoc) toDomain() *domain.Order {
	lines := make([]domain.LineSnapshot, 0, len(d.Lines))
	for _, l := range d.Lines {
		lines = append(lines, domain.LineSnapshot{
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	return &domain.Order{
		ID:       d.ID,
		CallerID: d.CallerID,
		State:    domain.OrderState(d.State),
		Lines:    lines,
		Address: domain.Address{
			Name:    d.Address.Name,
			Phone:   d.Address.Phone,
			Line1:   d.Address.Line1,
			City:    d.Address.City,
			State:   d.Address.State,
			Pincode: d.Address.Pincode,
		},
		ShippingMethod: d.ShippingMethod,
		Total:          d.Total,
		CreatedAt:      d.CreatedAt,
	}
}

// OrderRepository is a MongoDB-backed implementation of
// domain.OrderRepository. Orders are immutable once inserted.
type OrderRepository struct {
	collection *mongo.Collection
}

// NewOrderRepository constructs an OrderRepository against conn's
// orders collection.
func NewOrderRepository(conn *platformmongo.Connection) *OrderRepository {
	return &OrderRepository{collection: conn.Collection(ordersCollection)}
}

// Insert persists a newly created order.
func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	_, err := r.collection.InsertOne(ctx, orderToDoc(o))
	return err
}

// FindByID fetches an order by id.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var doc orderDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}
