package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Reservation.IsValid
// ============================================================================

func TestReservationIsValid_ActiveAndUnexpired(t *testing.T) {
	now := time.Now().UTC()
	r := &Reservation{State: ReservationActive, ExpiresAt: now.Add(time.Minute)}
	assert.True(t, r.IsValid(now))
}

func TestReservationIsValid_ActiveButExpired(t *testing.T) {
	now := time.Now().UTC()
	r := &Reservation{State: ReservationActive, ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, r.IsValid(now))
}

func TestReservationIsValid_NotActive(t *testing.T) {
	now := time.Now().UTC()
	r := &Reservation{State: ReservationConsumed, ExpiresAt: now.Add(time.Minute)}
	assert.False(t, r.IsValid(now))
}

// ============================================================================
// Reservation.TotalQuantity
// ============================================================================

func TestReservationTotalQuantity_SumsLines(t *testing.T) {
	r := &Reservation{Lines: []LineSnapshot{{Quantity: 2}, {Quantity: 3}}}
	assert.Equal(t, 5, r.TotalQuantity())
}

func TestReservationTotalQuantity_NoLines(t *testing.T) {
	r := &Reservation{}
	assert.Equal(t, 0, r.TotalQuantity())
}

// ============================================================================
// ReservationState.IsTerminal
// ============================================================================

func TestReservationStateIsTerminal(t *testing.T) {
	assert.False(t, ReservationActive.IsTerminal())
	assert.True(t, ReservationConsumed.IsTerminal())
	assert.True(t, ReservationExpired.IsTerminal())
	assert.True(t, ReservationCancelled.IsTerminal())
}

// ============================================================================
// LineSnapshot.Total
// ============================================================================

func TestLineSnapshotTotal(t *testing.T) {
	l := LineSnapshot{UnitPrice: 1299, Quantity: 3}
	assert.Equal(t, int64(3897), l.Total())
}
