package domain

import (
	"context"
	"time"
)

// OrderState is the lifecycle state of an Order.
type OrderState string

const (
	OrderCreated   OrderState = "created"
	OrderCancelled OrderState = "cancelled"
)

// Order is created exactly once per successful confirm and never
// mutated by the core thereafter.
type Order struct {
	ID             string
	CallerID       string
	State          OrderState
	Lines          []LineSnapshot
	Address        Address
	ShippingMethod string
	Total          int64 // sum of unitPrice * quantity over Lines, minor units
	CreatedAt      time.Time
}

// NewOrder builds an Order from a confirmed reservation's snapshots.
// Total is computed here rather than trusted from a caller so it can
// never drift from the line snapshots it was built from.
func NewOrder(id string, r *Reservation, now time.Time) *Order {
	var total int64
	for _, l := range r.Lines {
		total += l.Total()
	}

	return &Order{
		ID:             id,
		CallerID:       r.CallerID,
		State:          OrderCreated,
		Lines:          r.Lines,
		Address:        r.Address,
		ShippingMethod: r.ShippingMethod,
		Total:          total,
		CreatedAt:      now,
	}
}

// OrderRepository persists Orders. Orders are immutable once created,
// so the contract exposes no update method.
type OrderRepository interface {
	Insert(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
}
