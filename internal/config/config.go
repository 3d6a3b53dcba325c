package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the checkout core service.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Checkout      CheckoutConfig
	Observability ObservabilityConfig
}

// ServerConfig contains the HTTP and gRPC listener configuration.
type ServerConfig struct {
	HTTPPort     string
	GRPCPort     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig contains MongoDB connection settings.
type DatabaseConfig struct {
	ConnectionURL   string
	DatabaseName    string
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
	MaxPoolSize     int
	MinPoolSize     int
	MaxConnIdleTime time.Duration
}

// RedisConfig contains the Redis connection settings used for the
// idempotency response cache.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig contains the Kafka producer settings used for best-effort
// low-stock signal publication.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// CheckoutConfig contains the reservation engine's domain parameters.
type CheckoutConfig struct {
	HoldDuration      time.Duration
	SweepInterval     time.Duration
	SweepBatchLimit   int
	RateLimitPerMin   int
	RateLimitBurst    int
	IdempotencyLockTTL time.Duration
}

// ObservabilityConfig contains observability settings.
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
	TracingEnabled bool
	ServiceName    string
	ServiceVersion string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:     getEnvOrDefault("CHECKOUT_HTTP_PORT", "8080"),
			GRPCPort:     getEnvOrDefault("CHECKOUT_GRPC_PORT", "50053"),
			ReadTimeout:  parseDurationOrDefault("CHECKOUT_READ_TIMEOUT", "30s"),
			WriteTimeout: parseDurationOrDefault("CHECKOUT_WRITE_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			ConnectionURL:   getEnvOrDefault("MONGODB_CONNECTION_URL", "mongodb://localhost:27017"),
			DatabaseName:    getEnvOrDefault("MONGODB_DATABASE_NAME", "checkout_db"),
			ConnectTimeout:  parseDurationOrDefault("MONGODB_CONNECT_TIMEOUT", "10s"),
			QueryTimeout:    parseDurationOrDefault("MONGODB_QUERY_TIMEOUT", "5s"),
			MaxPoolSize:     parseIntOrDefault("MONGODB_MAX_POOL_SIZE", "100"),
			MinPoolSize:     parseIntOrDefault("MONGODB_MIN_POOL_SIZE", "10"),
			MaxConnIdleTime: parseDurationOrDefault("MONGODB_MAX_CONN_IDLE_TIME", "10m"),
		},
		Redis: RedisConfig{
			Address:      getEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           parseIntOrDefault("REDIS_DB", "0"),
			DialTimeout:  parseDurationOrDefault("REDIS_DIAL_TIMEOUT", "5s"),
			ReadTimeout:  parseDurationOrDefault("REDIS_READ_TIMEOUT", "3s"),
			WriteTimeout: parseDurationOrDefault("REDIS_WRITE_TIMEOUT", "3s"),
		},
		Kafka: KafkaConfig{
			Brokers: splitOrDefault("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnvOrDefault("KAFKA_LOW_STOCK_TOPIC", "low-stock-signals"),
			Enabled: parseBoolOrDefault("KAFKA_ENABLED", "true"),
		},
		Checkout: CheckoutConfig{
			HoldDuration:       parseDurationOrDefault("CHECKOUT_HOLD_DURATION", "10m"),
			SweepInterval:      parseDurationOrDefault("CHECKOUT_SWEEP_INTERVAL", "60s"),
			SweepBatchLimit:    parseIntOrDefault("CHECKOUT_SWEEP_BATCH_LIMIT", "200"),
			RateLimitPerMin:    parseIntOrDefault("CHECKOUT_RATE_LIMIT_PER_MIN", "20"),
			RateLimitBurst:     parseIntOrDefault("CHECKOUT_RATE_LIMIT_BURST", "5"),
			IdempotencyLockTTL: parseDurationOrDefault("CHECKOUT_IDEMPOTENCY_LOCK_TTL", "30s"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
			MetricsEnabled: parseBoolOrDefault("METRICS_ENABLED", "true"),
			TracingEnabled: parseBoolOrDefault("TRACING_ENABLED", "true"),
			ServiceName:    getEnvOrDefault("SERVICE_NAME", "checkout-core"),
			ServiceVersion: getEnvOrDefault("SERVICE_VERSION", "1.0.0"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Server.HTTPPort == "" {
		return fmt.Errorf("http port cannot be empty")
	}
	if c.Server.GRPCPort == "" {
		return fmt.Errorf("grpc port cannot be empty")
	}

	if c.Database.ConnectionURL == "" {
		return fmt.Errorf("MongoDB connection URL cannot be empty")
	}
	if c.Database.DatabaseName == "" {
		return fmt.Errorf("MongoDB database name cannot be empty")
	}
	if c.Database.MaxPoolSize <= 0 {
		return fmt.Errorf("MongoDB max pool size must be positive")
	}
	if c.Database.MinPoolSize < 0 {
		return fmt.Errorf("MongoDB min pool size cannot be negative")
	}
	if c.Database.MinPoolSize > c.Database.MaxPoolSize {
		return fmt.Errorf("MongoDB min pool size cannot be greater than max pool size")
	}

	if c.Checkout.HoldDuration <= 0 {
		return fmt.Errorf("hold duration must be positive")
	}
	if c.Checkout.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Checkout.RateLimitPerMin <= 0 {
		return fmt.Errorf("rate limit per minute must be positive")
	}

	if c.Observability.ServiceName == "" {
		return fmt.Errorf("service name must be specified")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue string) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	if parsed, err := strconv.Atoi(defaultValue); err == nil {
		return parsed
	}
	return 0
}

func parseBoolOrDefault(key string, defaultValue string) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	if parsed, err := strconv.ParseBool(defaultValue); err == nil {
		return parsed
	}
	return false
}

func parseDurationOrDefault(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	parsed, _ := time.ParseDuration(defaultValue)
	return parsed
}

func splitOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var parts []string
	start := 0
	for i := 0; i < len(value); i++ {
		if value[i] == ',' {
			if value[start:i] != "" {
				parts = append(parts, value[start:i])
			}
			start = i + 1
		}
	}
	if value[start:] != "" {
		parts = append(parts, value[start:])
	}

	if len(parts) == 0 {
		return defaultValue
	}
	return parts
}
