package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/domain"
)

type lineSnapshotDoc struct {
	ProductID string `bson:"product_id"`
	SKU       string `bson:"sku"`
	Name      string `bson:"name"`
	UnitPrice int64  `bson:"unit_price"`
	Quantity  int    `bson:"quantity"`
}

type addressDoc struct {
	Name    string `bson:"name"`
	Phone   string `bson:"phone"`
	Line1   string `bson:"line1"`
	City    string `bson:"city"`
	State   string `bson:"state"`
	Pincode string `bson:"pincode"`
}

type reservationDoc struct {
	ID             string            `bson:"_id"`
	CallerID       string            `bson:"caller_id"`
	State          string            `bson:"state"`
	Lines          []lineSnapshotDoc `bson:"lines"`
	Address        addressDoc        `bson:"address"`
	ShippingMethod string            `bson:"shipping_method"`
	ExpiresAt      time.Time         `bson:"expires_at"`
	CreatedAt      time.Time         `bson:"created_at"`
}

func reservationToDoc(r *domain.Reservation) *reservationDoc {
	lines := make([]lineSnapshotDoc, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, lineSnapshotDoc{
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	return &reservationDoc{
		ID:       r.ID,
		CallerID: r.CallerID,
		State:    string(r.State),
		Lines:    lines,
		Address: addressDoc{
			Name:    r.Address.Name,
			Phone:   r.Address.Phone,
			Line1:   r.Address.Line1,
			City:    r.Address.City,
			State:   r.Address.State,
			Pincode: r.Address.Pincode,
		},
		ShippingMethod: r.ShippingMethod,
		ExpiresAt:      r.ExpiresAt,
		CreatedAt:      r.CreatedAt,
	}
}

func (d *reservationDoc) toDomain() *domain.Reservation {
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

	return &domain.Reservation{
		ID:       d.ID,
		CallerID: d.CallerID,
		State:    domain.ReservationState(d.State),
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
		ExpiresAt:      d.ExpiresAt,
		CreatedAt:      d.CreatedAt,
	}
}

// ReservationRepository is the Reservation Store: a MongoDB-backed
// implementation of domain.ReservationRepository.
type ReservationRepository struct {
	collection *mongo.Collection
}

// NewReservationRepository constructs a ReservationRepository against
// conn's reservations collection.
func NewReservationRepository(conn *platformmongo.Connection) *ReservationRepository {
	return &ReservationRepository{collection: conn.Collection(reservationsCollection)}
}

// Insert persists a newly created reservation.
func (r *ReservationRepository) Insert(ctx context.Context, res *domain.Reservation) error {
	_, err := r.collection.InsertOne(ctx, reservationToDoc(res))
	return err
}

// FindByID fetches a reservation by id.
func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var doc reservationDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

// TryTransition performs the guarded state change: only a document
// currently in `from` is matched, so a concurrent confirm racing a
// concurrent sweep can never both win.
func (r *ReservationRepository) TryTransition(ctx context.Context, id string, from, to domain.ReservationState, now time.Time) error {
	filter := bson.M{"_id": id, "state": string(from)}
	if from == domain.ReservationActive && to == domain.ReservationExpired {
		filter["expires_at"] = bson.M{"$lte": now}
	}

	update := bson.M{"$set": bson.M{"state": string(to)}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrReservationNotFound
		}
		return domain.ErrReservationStateConflict
	}
	return nil
}

// FindExpiredActive returns up to limit active reservations whose hold
// has lapsed, for the sweeper's per-cycle scan.
func (r *ReservationRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	filter := bson.M{
		"state":      string(domain.ReservationActive),
		"expires_at": bson.M{"$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations []*domain.Reservation
	for cursor.Next(ctx) {
		var doc reservationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		reservations = append(reservations, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return reservations, nil
}
