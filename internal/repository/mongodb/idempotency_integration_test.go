//go:build integration

package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amiosamu/checkout-core/internal/domain"
)

func TestIdempotencyRepository_ReserveSlot_FirstAttemptInserts(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewIdempotencyRepository(conn)
	ctx := context.Background()

	record, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, domain.IdempotencyInProgress, record.State)
}

func TestIdempotencyRepository_ReserveSlot_DuplicateReturnsExisting(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewIdempotencyRepository(conn)
	ctx := context.Background()

	first, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", time.Minute)
	require.NoError(t, err)
	require.True(t, inserted)

	second, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestIdempotencyRepository_ReserveSlot_ReclaimsExpiredLockSameFingerprint(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewIdempotencyRepository(conn)
	ctx := context.Background()

	_, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", -time.Second)
	require.NoError(t, err)
	require.True(t, inserted)

	reclaimed, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, inserted, "a lapsed in_progress lock must be reclaimable when the retry carries the same fingerprint")
	assert.Equal(t, "fp-1", reclaimed.Fingerprint)
}

func TestIdempotencyRepository_ReserveSlot_ExpiredLockDifferentFingerprintIsMismatch(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewIdempotencyRepository(conn)
	ctx := context.Background()

	_, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", -time.Second)
	require.NoError(t, err)
	require.True(t, inserted)

	existing, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, inserted, "a lapsed lock must not let a different fingerprint silently reclaim the slot")
	assert.Equal(t, "fp-1", existing.Fingerprint, "the original fingerprint must be preserved so the caller can detect the mismatch")
}

func TestIdempotencyRepository_Finish_UpdatesStateAndResponse(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewIdempotencyRepository(conn)
	ctx := context.Background()

	_, _, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, repo.Finish(ctx, "caller-1", "confirm", "tok-1", domain.IdempotencySucceeded, []byte(`{"orderId":"o-1"}`)))

	_, inserted, err := repo.ReserveSlot(ctx, "caller-1", "confirm", "tok-1", "fp-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, inserted)
}
