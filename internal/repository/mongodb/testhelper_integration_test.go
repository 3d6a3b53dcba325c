//go:build integration

package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
)

// newTestConnection starts a throwaway single-node Mongo replica set
// (transactions require one, even with a single member) and returns a
// platform connection against it, cleaned up when the test ends.
func newTestConnection(t *testing.T) *platformmongo.Connection {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := platformmongo.DefaultConfig()
	cfg.URI = uri
	cfg.Database = "checkout_core_test"

	logger := logging.NewNoOpLogger()
	conn, err := platformmongo.NewConnection(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, EnsureIndexes(ctx, conn))
	return conn
}

func seedProduct(t *testing.T, conn *platformmongo.Connection, p productDoc) {
	t.Helper()
	_, err := conn.Collection(productsCollection).InsertOne(context.Background(), p)
	require.NoError(t, err)
}
