package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// IdempotencyState is the lifecycle state of an IdempotencyRecord.
type IdempotencyState string

const (
	IdempotencyInProgress IdempotencyState = "in_progress"
	IdempotencySucceeded  IdempotencyState = "succeeded"
	IdempotencyFailed     IdempotencyState = "failed"
)

// IdempotencyRecord enforces at-most-once effective confirm per
// (caller, endpoint, token). Once Succeeded, Fingerprint and Response
// are frozen.
type IdempotencyRecord struct {
	CallerID    string
	Endpoint    string
	Token       string
	Fingerprint string
	State       IdempotencyState
	Response    json.RawMessage
	LockedUntil time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdempotencyRepository is the Idempotency Store.
type IdempotencyRepository interface {
	// ReserveSlot atomically inserts an in_progress record if none
	// exists for (caller, endpoint, token); the unique index on that
	// triple guarantees at most one concurrent creator wins. It always
	// returns the record now on file (the one it inserted, or the one
	// that already existed) together with whether this call was the
	// inserter.
	ReserveSlot(ctx context.Context, callerID, endpoint, token, fingerprint string, lockFor time.Duration) (record *IdempotencyRecord, inserted bool, err error)

	// Finish overwrites state and cached response for an existing slot.
	Finish(ctx context.Context, callerID, endpoint, token string, state IdempotencyState, response json.RawMessage) error
}

// BuildFingerprint computes the deterministic, 256-bit hex-encoded hash
// the spec requires: a SHA-256 digest over the canonical serialization
// of the request payload (JSON with object keys sorted lexicographically),
// scoped by endpoint so the same payload against a different operation
// never collides.
func BuildFingerprint(endpoint string, payload interface{}) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write(canonical)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON re-serializes v through an untyped interface{} so that
// encoding/json's map-key sort (alphabetical, since Go 1.12) takes
// effect regardless of the original struct's field order. Prices in
// fingerprinted payloads are integer minor units, so no floating-point
// instability can enter the digest.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}
