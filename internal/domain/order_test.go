package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewOrder_ComputesTotalFromLines(t *testing.T) {
	now := time.Now().UTC()
	r := &Reservation{
		ID:             "res-1",
		CallerID:       "caller-1",
		Lines:          []LineSnapshot{{UnitPrice: 1000, Quantity: 2}, {UnitPrice: 500, Quantity: 1}},
		Address:        Address{Name: "A"},
		ShippingMethod: "standard",
	}

	o := NewOrder("order-1", r, now)

	assert.Equal(t, int64(2500), o.Total)
	assert.Equal(t, OrderCreated, o.State)
	assert.Equal(t, r.CallerID, o.CallerID)
	assert.Equal(t, now, o.CreatedAt)
}

func TestNewOrder_EmptyLinesZeroTotal(t *testing.T) {
	r := &Reservation{ID: "res-2", CallerID: "caller-2"}
	o := NewOrder("order-2", r, time.Now().UTC())
	assert.Equal(t, int64(0), o.Total)
}
