package domain

import (
	"context"
	"time"
)

// ReservationState is the lifecycle state of a Reservation.
type ReservationState string

const (
	ReservationActive    ReservationState = "active"
	ReservationConsumed  ReservationState = "consumed"
	ReservationExpired   ReservationState = "expired"
	ReservationCancelled ReservationState = "cancelled"
)

// IsTerminal reports whether the state has no further allowed transitions.
func (s ReservationState) IsTerminal() bool {
	return s == ReservationConsumed || s == ReservationExpired || s == ReservationCancelled
}

// THold is the standard 10-minute hold. Reserve itself uses the Engine's
// configured hold duration (CHECKOUT_HOLD_DURATION), whose default is
// the same 10 minutes.
const THold = 10 * time.Minute

// LineSnapshot is the frozen SKU/name/unit-price/quantity copied at
// reserve time into a Reservation, and later into an Order, so that
// catalog edits never rewrite history.
type LineSnapshot struct {
	ProductID string
	SKU       string
	Name      string
	UnitPrice int64
	Quantity  int
}

// Total returns unitPrice * quantity for this line, in minor units.
func (l LineSnapshot) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Address is the destination address snapshot carried by a Reservation
// and later by its Order.
type Address struct {
	Name    string
	Phone   string
	Line1   string
	City    string
	State   string
	Pincode string
}

// RecognizedShippingMethods is the fixed set reserve validates against.
var RecognizedShippingMethods = map[string]bool{
	"standard": true,
	"express":  true,
}

// Reservation is a time-bounded, all-or-nothing soft hold on a set of
// product quantities for a single caller.
type Reservation struct {
	ID             string
	CallerID       string
	State          ReservationState
	Lines          []LineSnapshot
	Address        Address
	ShippingMethod string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// IsValid matches the getReservation contract: isValid = (state ==
// active && expiresAt > now).
func (r *Reservation) IsValid(now time.Time) bool {
	return r.State == ReservationActive && r.ExpiresAt.After(now)
}

// TotalQuantity sums line quantities across the reservation.
func (r *Reservation) TotalQuantity() int {
	total := 0
	for _, l := range r.Lines {
		total += l.Quantity
	}
	return total
}

// ReservationRepository is the Reservation Store: persistent soft-hold
// records with item snapshots, expiry, and lifecycle state.
type ReservationRepository interface {
	Insert(ctx context.Context, r *Reservation) error
	FindByID(ctx context.Context, id string) (*Reservation, error)

	// TryTransition moves a reservation from `from` to `to`, succeeding
	// only if its current state still matches `from` (and, for the
	// sweeper's expiry transition, expiresAt <= now). A zero-row match
	// (already transitioned by a racing confirm or sweep) is reported
	// via ErrReservationStateConflict, not treated as a hard failure by
	// callers that tolerate losing the race.
	TryTransition(ctx context.Context, id string, from, to ReservationState, now time.Time) error

	// FindExpiredActive returns active reservations whose expiresAt has
	// passed, for the sweeper's per-cycle scan.
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}
