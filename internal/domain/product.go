package domain

import (
	"context"
	"time"
)

// Product is a long-lived, externally curated catalog entry. The
// checkout core only ever mutates its two counters, stock and
// reserved, and only through the Inventory Store's conditional
// primitives (see InventoryRepository) — never by loading this struct,
// editing it in memory, and writing it back.
type Product struct {
	ID                string
	SKU               string
	Name              string
	UnitPrice         int64 // integer minor units
	Stock             int
	Reserved          int
	LowStockThreshold int
	Image             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available returns the derived quantity a new reservation may claim.
func (p *Product) Available() int {
	return p.Stock - p.Reserved
}

// Snapshot copies the fields a Reservation or Order line freezes at
// reserve time, so later catalog edits cannot rewrite history.
func (p *Product) Snapshot() LineSnapshot {
	return LineSnapshot{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
	}
}

// InventoryRepository is the Inventory Store: persistent per-product
// counters with a conditional-update primitive. Every method here maps
// to a single atomic operation against the backing store; none of them
// read-then-write in application code.
type InventoryRepository interface {
	// Read returns stock, reserved, and the derived available for a product.
	Read(ctx context.Context, productID string) (*Product, error)

	// TryIncrementReserved succeeds iff (stock - reserved) >= n; on
	// success, reserved += n. Returns ErrInsufficientStock if the guard
	// is unmet, ErrProductNotFound if productID does not exist.
	TryIncrementReserved(ctx context.Context, productID string, n int) error

	// TryCommit succeeds iff reserved >= n AND stock >= n; on success,
	// reserved -= n and stock -= n. Returns the post-update stock and
	// the product's low-stock threshold.
	TryCommit(ctx context.Context, productID string, n int) (stockAfter int, lowStockThreshold int, err error)

	// ReleaseReserved is a guarded decrement of reserved (must remain
	// >= 0), used by the sweeper. An aborted reserve needs no release:
	// its increments are rolled back with the transaction.
	ReleaseReserved(ctx context.Context, productID string, n int) error
}
