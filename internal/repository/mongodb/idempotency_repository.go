package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/domain"
)

type idempotencyDoc struct {
	CallerID    string          `bson:"caller_id"`
	Endpoint    string          `bson:"endpoint"`
	Token       string          `bson:"token"`
	Fingerprint string          `bson:"fingerprint"`
	State       string          `bson:"state"`
	Response    json.RawMessage `bson:"response,omitempty"`
	LockedUntil time.Time       `bson:"locked_until"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

func (d *idempotencyDoc) toDomain() *domain.IdempotencyRecord {
	return &domain.IdempotencyRecord{
		CallerID:    d.CallerID,
		Endpoint:    d.Endpoint,
		Token:       d.Token,
		Fingerprint: d.Fingerprint,
		State:       domain.IdempotencyState(d.State),
		Response:    d.Response,
		LockedUntil: d.LockedUntil,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// IdempotencyRepository is the Idempotency Store: a MongoDB-backed
// implementation of domain.IdempotencyRepository, built on the unique
// index over (caller_id, endpoint, token) to make slot reservation a
// single atomic insert-or-read.
type IdempotencyRepository struct {
	collection *mongo.Collection
}

// NewIdempotencyRepository constructs an IdempotencyRepository against
// conn's idempotency_records collection.
func NewIdempotencyRepository(conn *platformmongo.Connection) *IdempotencyRepository {
	return &IdempotencyRepository{collection: conn.Collection(idempotencyCollection)}
}

// ReserveSlot tries to insert a fresh in_progress record. A duplicate
// key error means another attempt already holds (or finished) this
// slot; that existing record is then read back and returned instead,
// with inserted=false, so the caller can branch on match, mismatch, or
// retry-after-crash.
func (r *IdempotencyRepository) ReserveSlot(ctx context.Context, callerID, endpoint, token, fingerprint string, lockFor time.Duration) (*domain.IdempotencyRecord, bool, error) {
	now := time.Now().UTC()
	doc := idempotencyDoc{
		CallerID:    callerID,
		Endpoint:    endpoint,
		Token:       token,
		Fingerprint: fingerprint,
		State:       string(domain.IdempotencyInProgress),
		LockedUntil: now.Add(lockFor),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err == nil {
		return doc.toDomain(), true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}

	var existing idempotencyDoc
	findErr := r.collection.FindOne(ctx, bson.M{
		"caller_id": callerID,
		"endpoint":  endpoint,
		"token":     token,
	}).Decode(&existing)
	if findErr != nil {
		return nil, false, findErr
	}

	// A crashed in_progress attempt whose lock has lapsed is retried by
	// reclaiming the slot, but only for the same fingerprint: a lapsed
	// lock never licenses a different payload to slip past the
	// mismatch check below, so the reclaim filter also pins the
	// existing fingerprint and a value change falls through to the
	// plain "return existing, inserted=false" path instead.
	if existing.State == string(domain.IdempotencyInProgress) && existing.LockedUntil.Before(now) && existing.Fingerprint == fingerprint {
		reclaimFilter := bson.M{
			"caller_id":    callerID,
			"endpoint":     endpoint,
			"token":        token,
			"state":        string(domain.IdempotencyInProgress),
			"locked_until": bson.M{"$lt": now},
			"fingerprint":  fingerprint,
		}
		reclaimUpdate := bson.M{
			"$set": bson.M{
				"fingerprint":  fingerprint,
				"locked_until": now.Add(lockFor),
				"updated_at":   now,
			},
		}
		result, reclaimErr := r.collection.UpdateOne(ctx, reclaimFilter, reclaimUpdate)
		if reclaimErr != nil {
			return nil, false, reclaimErr
		}
		if result.MatchedCount == 1 {
			existing.Fingerprint = fingerprint
			existing.LockedUntil = now.Add(lockFor)
			existing.UpdatedAt = now
			return existing.toDomain(), true, nil
		}
		// Lost the reclaim race; fall through and read back whoever won.
		if err := r.collection.FindOne(ctx, bson.M{
			"caller_id": callerID,
			"endpoint":  endpoint,
			"token":     token,
		}).Decode(&existing); err != nil {
			return nil, false, err
		}
	}

	return existing.toDomain(), false, nil
}

// Finish overwrites state and cached response for an existing slot.
func (r *IdempotencyRepository) Finish(ctx context.Context, callerID, endpoint, token string, state domain.IdempotencyState, response json.RawMessage) error {
	filter := bson.M{"caller_id": callerID, "endpoint": endpoint, "token": token}
	update := bson.M{
		"$set": bson.M{
			"state":      string(state),
			"response":   response,
			"updated_at": time.Now().UTC(),
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update())
	return err
}
