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

// ============================================================================
// TryIncrementReserved
// ============================================================================

func TestProductRepository_TryIncrementReserved_SucceedsWithinAvailable(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewProductRepository(conn)
	ctx := context.Background()

	seedProduct(t, conn, productDoc{ID: "p1", SKU: "SKU-1", Stock: 10, Reserved: 2, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})

	require.NoError(t, repo.TryIncrementReserved(ctx, "p1", 5))

	product, err := repo.Read(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, product.Reserved)
	assert.Equal(t, 3, product.Available())
}

func TestProductRepository_TryIncrementReserved_FailsWhenInsufficient(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewProductRepository(conn)
	ctx := context.Background()

	seedProduct(t, conn, productDoc{ID: "p1", SKU: "SKU-1", Stock: 10, Reserved: 8, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})

	err := repo.TryIncrementReserved(ctx, "p1", 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	product, readErr := repo.Read(ctx, "p1")
	require.NoError(t, readErr)
	assert.Equal(t, 8, product.Reserved, "reserved must be untouched on a failed guard")
}

func TestProductRepository_TryIncrementReserved_MissingProduct(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewProductRepository(conn)

	err := repo.TryIncrementReserved(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

// ============================================================================
// TryCommit
// ============================================================================

func TestProductRepository_TryCommit_DecrementsBothCounters(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewProductRepository(conn)
	ctx := context.Background()

	seedProduct(t, conn, productDoc{ID: "p1", SKU: "SKU-1", Stock: 10, Reserved: 5, LowStockThreshold: 3, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})

	stockAfter, threshold, err := repo.TryCommit(ctx, "p1", 4)
	require.NoError(t, err)
	assert.Equal(t, 6, stockAfter)
	assert.Equal(t, 3, threshold)

	product, readErr := repo.Read(ctx, "p1")
	require.NoError(t, readErr)
	assert.Equal(t, 6, product.Stock)
	assert.Equal(t, 1, product.Reserved)
}

func TestProductRepository_TryCommit_FailsWhenReservedTooLow(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewProductRepository(conn)
	ctx := context.Background()

	seedProduct(t, conn, productDoc{ID: "p1", SKU: "SKU-1", Stock: 10, Reserved: 2, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})

	_, _, err := repo.TryCommit(ctx, "p1", 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

// ============================================================================
// ReleaseReserved
// ============================================================================

func TestProductRepository_ReleaseReserved_Decrements(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewProductRepository(conn)
	ctx := context.Background()

	seedProduct(t, conn, productDoc{ID: "p1", SKU: "SKU-1", Stock: 10, Reserved: 5, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})

	require.NoError(t, repo.ReleaseReserved(ctx, "p1", 5))

	product, err := repo.Read(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Reserved)
}

func TestProductRepository_ReleaseReserved_GuardsAgainstNegative(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewProductRepository(conn)
	ctx := context.Background()

	seedProduct(t, conn, productDoc{ID: "p1", SKU: "SKU-1", Stock: 10, Reserved: 2, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})

	err := repo.ReleaseReserved(ctx, "p1", 5)
	assert.Error(t, err)
}
