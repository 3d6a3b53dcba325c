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

func newTestReservation(id string, state domain.ReservationState, expiresAt time.Time) *domain.Reservation {
	return &domain.Reservation{
		ID:             id,
		CallerID:       "caller-1",
		State:          state,
		Lines:          []domain.LineSnapshot{{ProductID: "p1", SKU: "SKU-1", UnitPrice: 100, Quantity: 2}},
		ShippingMethod: "standard",
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestReservationRepository_TryTransition_Succeeds(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewReservationRepository(conn)
	ctx := context.Background()

	res := newTestReservation("r1", domain.ReservationActive, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Insert(ctx, res))

	require.NoError(t, repo.TryTransition(ctx, "r1", domain.ReservationActive, domain.ReservationConsumed, time.Now().UTC()))

	fetched, err := repo.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConsumed, fetched.State)
}

func TestReservationRepository_TryTransition_ConflictsOnWrongState(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewReservationRepository(conn)
	ctx := context.Background()

	res := newTestReservation("r1", domain.ReservationConsumed, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Insert(ctx, res))

	err := repo.TryTransition(ctx, "r1", domain.ReservationActive, domain.ReservationExpired, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrReservationStateConflict)
}

func TestReservationRepository_TryTransition_NotFound(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewReservationRepository(conn)

	err := repo.TryTransition(context.Background(), "missing", domain.ReservationActive, domain.ReservationExpired, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestReservationRepository_FindExpiredActive_FiltersByStateAndExpiry(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewReservationRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, newTestReservation("expired-1", domain.ReservationActive, now.Add(-time.Minute))))
	require.NoError(t, repo.Insert(ctx, newTestReservation("still-active", domain.ReservationActive, now.Add(time.Hour))))
	require.NoError(t, repo.Insert(ctx, newTestReservation("already-consumed", domain.ReservationConsumed, now.Add(-time.Minute))))

	expired, err := repo.FindExpiredActive(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "expired-1", expired[0].ID)
}
