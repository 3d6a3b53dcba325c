// Package mongodb wraps the official mongo-driver with the connection
// lifecycle, collection access, and transaction-retry helpers every
// repository in this service is built on.
package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/amiosamu/checkout-core/internal/platform/errors"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI            string        `json:"uri"`
	Database       string        `json:"database"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	QueryTimeout   time.Duration `json:"query_timeout"`
	MaxPoolSize    uint64        `json:"max_pool_size"`
	MinPoolSize    uint64        `json:"min_pool_size"`
	MaxIdleTime    time.Duration `json:"max_idle_time"`
}

// DefaultConfig returns a default MongoDB configuration.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "checkout",
		ConnectTimeout: 30 * time.Second,
		QueryTimeout:   30 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    5,
		MaxIdleTime:    5 * time.Minute,
	}
}

// Connection manages a MongoDB database connection.
type Connection struct {
	Client   *mongo.Client
	Database *mongo.Database
	config   Config
	logger   logging.Logger
}

// NewConnection creates a new MongoDB connection.
func NewConnection(config Config, logger logging.Logger) (*Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetMaxConnIdleTime(config.MaxIdleTime).
		SetConnectTimeout(config.ConnectTimeout).
		SetServerSelectionTimeout(config.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}

	database := client.Database(config.Database)

	logger.Info(ctx, "MongoDB connection established", map[string]interface{}{
		"uri":             config.URI,
		"database":        config.Database,
		"max_pool_size":   config.MaxPoolSize,
		"min_pool_size":   config.MinPoolSize,
		"connect_timeout": config.ConnectTimeout,
	})

	return &Connection{
		Client:   client,
		Database: database,
		config:   config,
		logger:   logger,
	}, nil
}

// Close closes the MongoDB connection.
func (c *Connection) Close() error {
	if c.Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.Client.Disconnect(ctx); err != nil {
			c.logger.Error(nil, "Failed to close MongoDB connection", err)
			return err
		}
		c.logger.Info(nil, "MongoDB connection closed")
	}
	return nil
}

// HealthCheck performs a health check on the database.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return errors.NewInternal("MongoDB client is nil")
	}
	if err := c.Client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap(err, "MongoDB ping failed")
	}
	return nil
}

// Collection returns a collection with the given name.
func (c *Connection) Collection(name string) *mongo.Collection {
	return c.Database.Collection(name)
}

// WithTransaction executes fn inside a single MongoDB transaction.
func (c *Connection) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := c.Client.StartSession()
	if err != nil {
		return errors.Wrap(err, "failed to start MongoDB session")
	}
	defer session.EndSession(ctx)

	callback := func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	}

	if _, err := session.WithTransaction(ctx, callback); err != nil {
		return errors.Wrap(err, "MongoDB transaction failed")
	}

	return nil
}

// WithTransactionRetry runs fn in a transaction, retrying with a
// linearly growing backoff on transient conflicts (a concurrent writer
// hitting the same documents, a stepped-down primary, a timeout).
// Non-retryable errors, including every domain error the reservation
// and confirm flows produce, are returned immediately.
func (c *Connection) WithTransactionRetry(ctx context.Context, maxRetries int, fn func(sessCtx mongo.SessionContext) error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return err
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * 100 * time.Millisecond
			c.logger.Warn(ctx, "MongoDB transaction failed, retrying", map[string]interface{}{
				"attempt": attempt + 1,
				"backoff": backoff,
				"error":   err.Error(),
			})

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
	}

	return errors.Wrap(lastErr, fmt.Sprintf("MongoDB transaction failed after %d attempts", maxRetries+1))
}

// CreateIndexes creates indexes for a collection.
func (c *Connection) CreateIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	if len(indexes) == 0 {
		return nil
	}

	collection := c.Collection(collectionName)

	indexNames, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to create indexes for collection %s", collectionName))
	}

	c.logger.Info(ctx, "Created indexes", map[string]interface{}{
		"collection": collectionName,
		"indexes":    indexNames,
		"count":      len(indexNames),
	})

	return nil
}

// isRetryableError reports whether a MongoDB error reflects a
// transient condition worth retrying rather than a real failure.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if mongo.IsTimeout(err) {
		return true
	}
	if mongo.IsNetworkError(err) {
		return true
	}

	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) {
		retryableCodes := []int32{
			112,   // WriteConflict
			11600, // InterruptedAtShutdown
			11602, // InterruptedDueToReplStateChange
			10107, // NotMaster
			13435, // NotMasterNoSlaveOk
			189,   // PrimarySteppedDown
		}

		for _, code := range retryableCodes {
			if cmdErr.Code == code {
				return true
			}
		}
	}

	return false
}
