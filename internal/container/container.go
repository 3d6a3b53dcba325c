// Package container wires the checkout core's dependency graph:
// configuration, storage connections, repositories, the reservation
// engine, the expiry sweeper, and the transport layer.
package container

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/amiosamu/checkout-core/internal/config"
	repomongo "github.com/amiosamu/checkout-core/internal/repository/mongodb"
	"github.com/amiosamu/checkout-core/internal/ratelimit"
	"github.com/amiosamu/checkout-core/internal/service"
	"github.com/amiosamu/checkout-core/internal/sweeper"
	grpcTransport "github.com/amiosamu/checkout-core/internal/transport/grpc"
	httpTransport "github.com/amiosamu/checkout-core/internal/transport/http"

	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	platformredis "github.com/amiosamu/checkout-core/internal/platform/database/redis"
	"github.com/amiosamu/checkout-core/internal/platform/messaging/kafka"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
	"github.com/amiosamu/checkout-core/internal/platform/observability/metrics"
	"github.com/amiosamu/checkout-core/internal/platform/observability/tracing"
)

// Container owns every long-lived dependency the checkout core needs
// and wires them together in the order each stage requires.
type Container struct {
	config *config.Config
	logger logging.Logger

	mongoConn   *platformmongo.Connection
	redisConn   *platformredis.Connection
	kafkaProd   *kafka.Producer
	metrics     *metrics.PrometheusMetrics
	tracer      tracing.Tracer

	engine  *service.Engine
	sweeper *sweeper.Sweeper
	limiter *ratelimit.Limiter

	httpServer *httpTransport.Server
	grpcServer *grpcTransport.Server

	evictStop chan struct{}

	initialized bool
	started     bool
}

// New creates an empty container. Call Initialize before Start.
func New() *Container {
	return &Container{evictStop: make(chan struct{})}
}

// Initialize sets up all dependencies in dependency order: config,
// logging, observability, storage connections, repositories, the
// engine, the sweeper, and the transport layer.
func (c *Container) Initialize(ctx context.Context) error {
	if c.initialized {
		return fmt.Errorf("container already initialized")
	}

	if err := c.initializeConfig(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	if err := c.initializeLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c.logger.Info(ctx, "starting checkout core initialization", map[string]interface{}{
		"service": c.config.Observability.ServiceName,
		"version": c.config.Observability.ServiceVersion,
	})

	if err := c.initializeObservability(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initializeStorage(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := c.initializeMessaging(); err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	if err := c.initializeEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	c.initializeSweeper()
	c.initializeRateLimiter()

	if err := c.initializeTransport(); err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}

	c.initialized = true
	c.logger.Info(ctx, "checkout core initialization completed")

	return nil
}

// Start begins serving: the HTTP and gRPC listeners, the expiry
// sweeper's ticker, and the rate limiter's idle-eviction loop.
func (c *Container) Start(ctx context.Context) error {
	if !c.initialized {
		return fmt.Errorf("container must be initialized before starting")
	}
	if c.started {
		return fmt.Errorf("container already started")
	}

	c.logger.Info(ctx, "starting checkout core")

	c.sweeper.Start(ctx)
	go c.limiter.RunEvictionLoop(time.Minute, c.evictStop)

	if err := c.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := c.grpcServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gRPC server: %w", err)
	}

	c.started = true
	return nil
}

// Stop gracefully shuts down every started component in reverse
// dependency order.
func (c *Container) Stop(ctx context.Context) {
	if !c.started {
		return
	}

	c.logger.Info(ctx, "stopping checkout core")

	close(c.evictStop)
	c.sweeper.Stop()

	if err := c.httpServer.Stop(ctx); err != nil {
		c.logger.Warn(ctx, "HTTP server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	c.grpcServer.Stop(ctx)

	if c.kafkaProd != nil {
		if err := c.kafkaProd.Close(); err != nil {
			c.logger.Warn(ctx, "kafka producer close error", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.redisConn != nil {
		if err := c.redisConn.Close(); err != nil {
			c.logger.Warn(ctx, "redis connection close error", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.mongoConn != nil {
		if err := c.mongoConn.Close(); err != nil {
			c.logger.Warn(ctx, "mongo connection close error", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.tracer != nil {
		if err := c.tracer.Close(); err != nil {
			c.logger.Warn(ctx, "tracer close error", map[string]interface{}{"error": err.Error()})
		}
	}

	c.logger.Info(ctx, "checkout core stopped")
	c.started = false
}

// Config returns the loaded configuration.
func (c *Container) Config() *config.Config { return c.config }

// Logger returns the structured logger.
func (c *Container) Logger() logging.Logger { return c.logger }

// HealthCheck reports whether the container's storage dependencies are
// reachable.
func (c *Container) HealthCheck(ctx context.Context) error {
	if !c.initialized {
		return fmt.Errorf("container not initialized")
	}
	if err := c.mongoConn.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mongo health check failed: %w", err)
	}
	if c.redisConn != nil {
		if err := c.redisConn.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis health check failed: %w", err)
		}
	}
	return nil
}

func (c *Container) initializeConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.config = cfg
	return nil
}

func (c *Container) initializeLogger() error {
	logger, err := logging.NewLogger(c.config.Observability.LogLevel)
	if err != nil {
		return err
	}
	c.logger = logger.With(map[string]interface{}{
		"service": c.config.Observability.ServiceName,
		"version": c.config.Observability.ServiceVersion,
	})
	return nil
}

func (c *Container) initializeObservability() error {
	m, err := metrics.NewMetrics(c.config.Observability.ServiceName)
	if err != nil {
		return err
	}
	c.metrics = m

	otelEndpoint := ""
	if c.config.Observability.TracingEnabled {
		otelEndpoint = "localhost:4317"
	}
	tracer, err := tracing.NewTracer(
		c.config.Observability.ServiceName,
		c.config.Observability.ServiceVersion,
		otelEndpoint,
	)
	if err != nil {
		return err
	}
	c.tracer = tracer

	return nil
}

func (c *Container) initializeStorage(ctx context.Context) error {
	mongoConn, err := platformmongo.NewConnection(platformmongo.Config{
		URI:            c.config.Database.ConnectionURL,
		Database:       c.config.Database.DatabaseName,
		ConnectTimeout: c.config.Database.ConnectTimeout,
		QueryTimeout:   c.config.Database.QueryTimeout,
		MaxPoolSize:    uint64(c.config.Database.MaxPoolSize),
		MinPoolSize:    uint64(c.config.Database.MinPoolSize),
		MaxIdleTime:    c.config.Database.MaxConnIdleTime,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	c.mongoConn = mongoConn

	if err := repomongo.EnsureIndexes(ctx, mongoConn); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	redisHost, redisPort := splitHostPort(c.config.Redis.Address)
	redisConn, err := platformredis.NewConnection(platformredis.Config{
		Host:         redisHost,
		Port:         redisPort,
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   3,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.redisConn = redisConn

	return nil
}

func (c *Container) initializeMessaging() error {
	if !c.config.Kafka.Enabled {
		c.logger.Info(context.Background(), "kafka disabled, low-stock signals will not be published")
		return nil
	}

	producerCfg := kafka.DefaultProducerConfig()
	producerCfg.Brokers = c.config.Kafka.Brokers
	producerCfg.ClientID = c.config.Observability.ServiceName

	producer, err := kafka.NewProducer(producerCfg, c.logger, c.metrics)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	c.kafkaProd = producer

	return nil
}

func (c *Container) initializeEngine() error {
	stores := service.Stores{
		Products:     repomongo.NewProductRepository(c.mongoConn),
		Reservations: repomongo.NewReservationRepository(c.mongoConn),
		Orders:       repomongo.NewOrderRepository(c.mongoConn),
		Idempotency:  repomongo.NewIdempotencyRepository(c.mongoConn),
		LowStock:     repomongo.NewLowStockSignalRepository(c.mongoConn),
		Carts:        repomongo.NewCartRepository(c.mongoConn),
	}

	c.engine = service.NewEngine(
		c.mongoConn,
		stores,
		c.redisConn,
		c.kafkaProd,
		c.logger,
		c.metrics,
		c.tracer,
		c.config.Checkout.HoldDuration,
		c.config.Checkout.IdempotencyLockTTL,
	)

	return nil
}

func (c *Container) initializeSweeper() {
	c.sweeper = sweeper.New(
		c.mongoConn,
		repomongo.NewProductRepository(c.mongoConn),
		repomongo.NewReservationRepository(c.mongoConn),
		c.logger,
		c.metrics,
		c.config.Checkout.SweepInterval,
		c.config.Checkout.SweepBatchLimit,
	)
}

func (c *Container) initializeRateLimiter() {
	c.limiter = ratelimit.New(c.config.Checkout.RateLimitPerMin, c.config.Checkout.RateLimitBurst)
}

func (c *Container) initializeTransport() error {
	c.httpServer = httpTransport.NewServer(
		c.engine,
		c.mongoConn,
		c.limiter,
		c.metrics,
		c.logger,
		c.config.Server.HTTPPort,
	)

	c.grpcServer = grpcTransport.NewServer(c.config, c.logger)

	return nil
}

// splitHostPort separates a "host:port" address into the host/port
// pair platformredis.Config expects, falling back to port 6379 if the
// address carries none.
func splitHostPort(address string) (string, int) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return address, 6379
	}
	port := 6379
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}
