package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amiosamu/checkout-core/internal/container"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	c := container.New()
	if err := c.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize container: %v\n", err)
		os.Exit(1)
	}

	logger := c.Logger()
	printEnvironmentInfo(ctx, c)

	if err := c.Start(ctx); err != nil {
		logger.Error(ctx, "failed to start checkout core", err)
		os.Exit(1)
	}

	logger.Info(ctx, "checkout core started", map[string]interface{}{
		"http_port": c.Config().Server.HTTPPort,
		"grpc_port": c.Config().Server.GRPCPort,
		"pid":       os.Getpid(),
	})

	waitForShutdown(sigChan, c)
}

func waitForShutdown(sigChan <-chan os.Signal, c *container.Container) {
	logger := c.Logger()

	sig := <-sigChan
	logger.Info(context.Background(), "received shutdown signal", map[string]interface{}{"signal": sig.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Stop(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		logger.Info(context.Background(), "graceful shutdown completed")
	case <-shutdownCtx.Done():
		logger.Warn(context.Background(), "shutdown timeout exceeded, exiting")
	}
}

// printEnvironmentInfo logs the resolved configuration at startup to
// aid debugging deployment-specific issues.
func printEnvironmentInfo(ctx context.Context, c *container.Container) {
	cfg := c.Config()

	c.Logger().Info(ctx, "resolved configuration", map[string]interface{}{
		"environment":        os.Getenv("ENVIRONMENT"),
		"mongodb_database":   cfg.Database.DatabaseName,
		"redis_address":      cfg.Redis.Address,
		"kafka_enabled":      cfg.Kafka.Enabled,
		"hold_duration":      cfg.Checkout.HoldDuration.String(),
		"sweep_interval":     cfg.Checkout.SweepInterval.String(),
		"rate_limit_per_min": cfg.Checkout.RateLimitPerMin,
		"log_level":          cfg.Observability.LogLevel,
		"metrics_enabled":    cfg.Observability.MetricsEnabled,
		"tracing_enabled":    cfg.Observability.TracingEnabled,
	})
}
