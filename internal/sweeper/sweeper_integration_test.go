//go:build integration

package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	bsonprim "go.mongodb.org/mongo-driver/bson"

	"github.com/amiosamu/checkout-core/internal/domain"
	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
	"github.com/amiosamu/checkout-core/internal/platform/observability/metrics"
	repomongo "github.com/amiosamu/checkout-core/internal/repository/mongodb"
	"github.com/amiosamu/checkout-core/internal/sweeper"
)

func newTestSweeper(t *testing.T, interval time.Duration) (*sweeper.Sweeper, *platformmongo.Connection) {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := platformmongo.DefaultConfig()
	cfg.URI = uri
	cfg.Database = "checkout_core_sweeper_test"

	conn, err := platformmongo.NewConnection(cfg, logging.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, repomongo.EnsureIndexes(ctx, conn))

	m, err := metrics.NewMetrics("checkout-core-sweeper-test")
	require.NoError(t, err)

	s := sweeper.New(conn, repomongo.NewProductRepository(conn), repomongo.NewReservationRepository(conn), logging.NewNoOpLogger(), m, interval, 100)
	return s, conn
}

func seedProductRaw(t *testing.T, conn *platformmongo.Connection, id string, stock, reserved int) {
	t.Helper()
	now := time.Now().UTC()
	_, err := conn.Collection("products").InsertOne(context.Background(), bsonprim.M{
		"_id": id, "sku": id + "-sku", "name": "widget", "unit_price": int64(1000),
		"stock": stock, "reserved": reserved, "low_stock_threshold": 3,
		"created_at": now, "updated_at": now,
	})
	require.NoError(t, err)
}

func TestSweeper_ExpiresLapsedReservationAndReleasesStock(t *testing.T) {
	s, conn := newTestSweeper(t, time.Hour)
	ctx := context.Background()

	seedProductRaw(t, conn, "p1", 10, 4)
	reservations := repomongo.NewReservationRepository(conn)
	require.NoError(t, reservations.Insert(ctx, &domain.Reservation{
		ID: "r1", CallerID: "caller-1", State: domain.ReservationActive,
		Lines:     []domain.LineSnapshot{{ProductID: "p1", Quantity: 4}},
		ExpiresAt: time.Now().UTC().Add(-time.Minute), CreatedAt: time.Now().UTC(),
	}))

	s.Start(ctx)
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		res, err := reservations.FindByID(ctx, "r1")
		return err == nil && res.State == domain.ReservationExpired
	}, 5*time.Second, 50*time.Millisecond)

	product, err := repomongo.NewProductRepository(conn).Read(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Reserved)
}

func TestSweeper_LeavesUnexpiredReservationUntouched(t *testing.T) {
	s, conn := newTestSweeper(t, 50*time.Millisecond)
	ctx := context.Background()

	seedProductRaw(t, conn, "p1", 10, 4)
	reservations := repomongo.NewReservationRepository(conn)
	require.NoError(t, reservations.Insert(ctx, &domain.Reservation{
		ID: "r1", CallerID: "caller-1", State: domain.ReservationActive,
		Lines:     []domain.LineSnapshot{{ProductID: "p1", Quantity: 4}},
		ExpiresAt: time.Now().UTC().Add(time.Hour), CreatedAt: time.Now().UTC(),
	}))

	s.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	res, err := reservations.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, res.State)
}
