package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		original, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, original)
			}
		})
	}
}

// ============================================================================
// Load defaults
// ============================================================================

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "CHECKOUT_HTTP_PORT", "CHECKOUT_GRPC_PORT", "MONGODB_DATABASE_NAME",
		"CHECKOUT_HOLD_DURATION", "CHECKOUT_RATE_LIMIT_PER_MIN", "KAFKA_BROKERS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, "50053", cfg.Server.GRPCPort)
	assert.Equal(t, "checkout_db", cfg.Database.DatabaseName)
	assert.Equal(t, 10*time.Minute, cfg.Checkout.HoldDuration)
	assert.Equal(t, 20, cfg.Checkout.RateLimitPerMin)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

// ============================================================================
// Load env overrides
// ============================================================================

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t, "CHECKOUT_HTTP_PORT", "CHECKOUT_HOLD_DURATION", "KAFKA_BROKERS")

	os.Setenv("CHECKOUT_HTTP_PORT", "9090")
	os.Setenv("CHECKOUT_HOLD_DURATION", "5m")
	os.Setenv("KAFKA_BROKERS", "broker-a:9092,broker-b:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.HTTPPort)
	assert.Equal(t, 5*time.Minute, cfg.Checkout.HoldDuration)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Kafka.Brokers)
}

// ============================================================================
// validate
// ============================================================================

func TestValidate_RejectsEmptyHTTPPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.HTTPPort = ""
	assert.Error(t, cfg.validate())
}

func TestValidate_RejectsMinPoolSizeAboveMax(t *testing.T) {
	cfg := validConfig()
	cfg.Database.MinPoolSize = 50
	cfg.Database.MaxPoolSize = 10
	assert.Error(t, cfg.validate())
}

func TestValidate_RejectsNonPositiveHoldDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Checkout.HoldDuration = 0
	assert.Error(t, cfg.validate())
}

func TestValidate_RejectsNonPositiveRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Checkout.RateLimitPerMin = 0
	assert.Error(t, cfg.validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.validate())
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{HTTPPort: "8080", GRPCPort: "50053"},
		Database: DatabaseConfig{ConnectionURL: "mongodb://localhost:27017", DatabaseName: "checkout_db", MaxPoolSize: 100, MinPoolSize: 10},
		Checkout: CheckoutConfig{HoldDuration: 10 * time.Minute, SweepInterval: time.Minute, RateLimitPerMin: 20},
		Observability: ObservabilityConfig{ServiceName: "checkout-core"},
	}
}
