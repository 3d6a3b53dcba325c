//go:build integration

package service_test

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
	"github.com/amiosamu/checkout-core/internal/platform/observability/tracing"
	repomongo "github.com/amiosamu/checkout-core/internal/repository/mongodb"
	"github.com/amiosamu/checkout-core/internal/service"
)

func newTestEngine(t *testing.T) (*service.Engine, *platformmongo.Connection) {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := platformmongo.DefaultConfig()
	cfg.URI = uri
	cfg.Database = "checkout_core_engine_test"

	conn, err := platformmongo.NewConnection(cfg, logging.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, repomongo.EnsureIndexes(ctx, conn))

	m, err := metrics.NewMetrics("checkout-core-test")
	require.NoError(t, err)

	stores := service.Stores{
		Products:     repomongo.NewProductRepository(conn),
		Reservations: repomongo.NewReservationRepository(conn),
		Orders:       repomongo.NewOrderRepository(conn),
		Idempotency:  repomongo.NewIdempotencyRepository(conn),
		LowStock:     repomongo.NewLowStockSignalRepository(conn),
		Carts:        repomongo.NewCartRepository(conn),
	}

	engine := service.NewEngine(conn, stores, nil, nil, logging.NewNoOpLogger(), m, tracing.NewNoOpTracer(), 10*time.Minute, 30*time.Second)
	return engine, conn
}

func seedTestProduct(t *testing.T, conn *platformmongo.Connection, id string, stock, lowStockThreshold int) {
	t.Helper()
	now := time.Now().UTC()
	_, err := conn.Collection("products").InsertOne(context.Background(), bsonprim.M{
		"_id": id, "sku": id + "-sku", "name": "widget", "unit_price": int64(1000),
		"stock": stock, "reserved": 0, "low_stock_threshold": lowStockThreshold,
		"created_at": now, "updated_at": now,
	})
	require.NoError(t, err)
}

func seedTestCart(t *testing.T, conn *platformmongo.Connection, callerID string, lines []domain.CartLine) {
	t.Helper()
	docLines := make([]bsonprim.M, 0, len(lines))
	for _, l := range lines {
		docLines = append(docLines, bsonprim.M{"product_id": l.ProductID, "quantity": l.Quantity})
	}
	_, err := conn.Collection("carts").InsertOne(context.Background(), bsonprim.M{"_id": callerID, "caller_id": callerID, "lines": docLines})
	require.NoError(t, err)
}

var testAddress = domain.Address{Name: "A", Phone: "123", Line1: "1 Main St", City: "C", State: "S", Pincode: "00000"}

func TestEngine_ReserveThenConfirm_HappyPath(t *testing.T) {
	engine, conn := newTestEngine(t)
	ctx := context.Background()

	seedTestProduct(t, conn, "p1", 10, 3)
	seedTestCart(t, conn, "caller-1", []domain.CartLine{{ProductID: "p1", Quantity: 2}})

	reserveResult, err := engine.Reserve(ctx, service.ReserveRequest{CallerID: "caller-1", Address: testAddress, ShippingMethod: "standard"})
	require.NoError(t, err)
	assert.NotEmpty(t, reserveResult.ReservationID)

	confirmResult, err := engine.Confirm(ctx, service.ConfirmRequest{CallerID: "caller-1", ReservationID: reserveResult.ReservationID, IdempotencyKey: "idem-1"})
	require.NoError(t, err)
	assert.Equal(t, "created", confirmResult.Status)
	assert.NotEmpty(t, confirmResult.OrderID)

	got, err := engine.GetReservation(ctx, reserveResult.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConsumed, got.Reservation.State)
}

func TestEngine_Reserve_FailsOnInsufficientStock(t *testing.T) {
	engine, conn := newTestEngine(t)
	ctx := context.Background()

	seedTestProduct(t, conn, "p0", 10, 3)
	seedTestProduct(t, conn, "p1", 1, 3)
	seedTestCart(t, conn, "caller-1", []domain.CartLine{{ProductID: "p0", Quantity: 1}, {ProductID: "p1", Quantity: 5}})

	_, err := engine.Reserve(ctx, service.ReserveRequest{CallerID: "caller-1", Address: testAddress, ShippingMethod: "standard"})
	require.Error(t, err)

	first, readErr := repomongo.NewProductRepository(conn).Read(ctx, "p0")
	require.NoError(t, readErr)
	assert.Equal(t, 0, first.Reserved, "a failed multi-line reserve must leave every line's guard untouched")

	product, readErr := repomongo.NewProductRepository(conn).Read(ctx, "p1")
	require.NoError(t, readErr)
	assert.Equal(t, 0, product.Reserved, "a failed multi-line reserve must leave every line's guard untouched")
}

func TestEngine_Confirm_IdempotentReplay(t *testing.T) {
	engine, conn := newTestEngine(t)
	ctx := context.Background()

	seedTestProduct(t, conn, "p1", 10, 3)
	seedTestCart(t, conn, "caller-1", []domain.CartLine{{ProductID: "p1", Quantity: 2}})

	reserveResult, err := engine.Reserve(ctx, service.ReserveRequest{CallerID: "caller-1", Address: testAddress, ShippingMethod: "standard"})
	require.NoError(t, err)

	first, err := engine.Confirm(ctx, service.ConfirmRequest{CallerID: "caller-1", ReservationID: reserveResult.ReservationID, IdempotencyKey: "idem-1"})
	require.NoError(t, err)

	second, err := engine.Confirm(ctx, service.ConfirmRequest{CallerID: "caller-1", ReservationID: reserveResult.ReservationID, IdempotencyKey: "idem-1"})
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
}

func TestEngine_Confirm_MismatchOnReusedKeyDifferentReservation(t *testing.T) {
	engine, conn := newTestEngine(t)
	ctx := context.Background()

	seedTestProduct(t, conn, "p1", 10, 3)
	seedTestProduct(t, conn, "p2", 10, 3)
	seedTestCart(t, conn, "caller-1", []domain.CartLine{{ProductID: "p1", Quantity: 1}})

	reserve1, err := engine.Reserve(ctx, service.ReserveRequest{CallerID: "caller-1", Address: testAddress, ShippingMethod: "standard"})
	require.NoError(t, err)

	_, err = engine.Confirm(ctx, service.ConfirmRequest{CallerID: "caller-1", ReservationID: reserve1.ReservationID, IdempotencyKey: "idem-1"})
	require.NoError(t, err)

	seedTestCart(t, conn, "caller-1", []domain.CartLine{{ProductID: "p2", Quantity: 1}})
	reserve2, err := engine.Reserve(ctx, service.ReserveRequest{CallerID: "caller-1", Address: testAddress, ShippingMethod: "standard"})
	require.NoError(t, err)

	_, err = engine.Confirm(ctx, service.ConfirmRequest{CallerID: "caller-1", ReservationID: reserve2.ReservationID, IdempotencyKey: "idem-1"})
	assert.Error(t, err)
}

func TestEngine_Confirm_WrongCallerRejected(t *testing.T) {
	engine, conn := newTestEngine(t)
	ctx := context.Background()

	seedTestProduct(t, conn, "p1", 10, 3)
	seedTestCart(t, conn, "caller-1", []domain.CartLine{{ProductID: "p1", Quantity: 1}})

	reserveResult, err := engine.Reserve(ctx, service.ReserveRequest{CallerID: "caller-1", Address: testAddress, ShippingMethod: "standard"})
	require.NoError(t, err)

	_, err = engine.Confirm(ctx, service.ConfirmRequest{CallerID: "someone-else", ReservationID: reserveResult.ReservationID, IdempotencyKey: "idem-1"})
	assert.Error(t, err)
}
