// Package kafka publishes the checkout core's low-stock signals onto a
// topic for downstream replenishment consumers. Publication is
// best-effort: a signal that fails to send is still durable in the
// low_stock_signals collection and can be replayed later, so the
// producer only needs a synchronous send path.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	platformError "github.com/amiosamu/checkout-core/internal/platform/errors"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
	"github.com/amiosamu/checkout-core/internal/platform/observability/metrics"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers            []string      `json:"brokers"`
	ClientID           string        `json:"client_id"`
	MaxRetries         int           `json:"max_retries"`
	RetryBackoff       time.Duration `json:"retry_backoff"`
	CompressionType    string        `json:"compression_type"`
	IdempotentProducer bool          `json:"idempotent_producer"`
	RequiredAcks       int           `json:"required_acks"`
	MaxMessageBytes    int           `json:"max_message_bytes"`
	RequestTimeout     time.Duration `json:"request_timeout"`
}

// DefaultProducerConfig returns default producer configuration.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:            []string{"localhost:9092"},
		ClientID:           "checkout-core",
		MaxRetries:         3,
		RetryBackoff:       100 * time.Millisecond,
		CompressionType:    "snappy",
		IdempotentProducer: true,
		RequiredAcks:       1, // WaitForLocal
		MaxMessageBytes:    1000000,
		RequestTimeout:     30 * time.Second,
	}
}

// Producer publishes low-stock signal events synchronously.
type Producer struct {
	producer sarama.SyncProducer
	config   ProducerConfig
	logger   logging.Logger
	metrics  metrics.Metrics
	closed   bool
}

// NewProducer creates a new Kafka producer.
func NewProducer(config ProducerConfig, logger logging.Logger, m metrics.Metrics) (*Producer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.ClientID = config.ClientID
	saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes
	saramaConfig.Net.DialTimeout = config.RequestTimeout
	saramaConfig.Net.ReadTimeout = config.RequestTimeout
	saramaConfig.Net.WriteTimeout = config.RequestTimeout

	saramaConfig.Producer.Retry.Max = config.MaxRetries
	saramaConfig.Producer.Retry.Backoff = config.RetryBackoff

	switch config.RequiredAcks {
	case 0:
		saramaConfig.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	default:
		saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	}

	if config.IdempotentProducer {
		saramaConfig.Producer.Idempotent = true
		saramaConfig.Net.MaxOpenRequests = 1
	}

	switch config.CompressionType {
	case "none":
		saramaConfig.Producer.Compression = sarama.CompressionNone
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	}

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	syncProducer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, platformError.Wrap(err, "failed to create Kafka sync producer")
	}

	logger.Info(nil, "Kafka producer created successfully", map[string]interface{}{
		"brokers":       config.Brokers,
		"client_id":     config.ClientID,
		"compression":   config.CompressionType,
		"idempotent":    config.IdempotentProducer,
		"required_acks": config.RequiredAcks,
	})

	return &Producer{producer: syncProducer, config: config, logger: logger, metrics: m}, nil
}

// SendMessage sends a message synchronously.
func (p *Producer) SendMessage(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error {
	if p.closed {
		return platformError.NewInternal("producer is closed")
	}

	data, err := p.serializeValue(value)
	if err != nil {
		return platformError.Wrap(err, "failed to serialize message value")
	}

	message := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Headers:   p.buildHeaders(headers),
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.metrics.IncrementCounter("kafka_producer_errors_total", map[string]string{"topic": topic, "error": "send_failed"})
		p.logger.Error(ctx, "Failed to send Kafka message", err, map[string]interface{}{"topic": topic, "key": key})
		return platformError.Wrap(err, "failed to send Kafka message")
	}

	p.metrics.IncrementCounter("kafka_producer_messages_total", map[string]string{"topic": topic})
	p.metrics.RecordValue("kafka_producer_message_size_bytes", float64(len(data)), map[string]string{"topic": topic})

	p.logger.Debug(ctx, "Kafka message sent successfully", map[string]interface{}{
		"topic": topic, "key": key, "partition": partition, "offset": offset, "size": len(data),
	})

	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		p.logger.Error(nil, "error closing Kafka producer", err)
		return platformError.Wrap(err, "failed to close sync producer")
	}

	p.logger.Info(nil, "Kafka producer closed successfully")
	return nil
}

func (p *Producer) serializeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func (p *Producer) buildHeaders(headers map[string]string) []sarama.RecordHeader {
	var recordHeaders []sarama.RecordHeader

	for k, v := range headers {
		recordHeaders = append(recordHeaders, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	recordHeaders = append(recordHeaders,
		sarama.RecordHeader{Key: []byte("producer-id"), Value: []byte(p.config.ClientID)},
		sarama.RecordHeader{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		sarama.RecordHeader{Key: []byte("message-id"), Value: []byte(uuid.New().String())},
	)

	return recordHeaders
}

// Event represents a standardized event message.
type Event struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Source   string                 `json:"source"`
	Subject  string                 `json:"subject"`
	Time     time.Time              `json:"time"`
	Data     interface{}            `json:"data"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates a new standardized event.
func NewEvent(eventType, source, subject string, data interface{}) *Event {
	return &Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		Source:   source,
		Subject:  subject,
		Time:     time.Now().UTC(),
		Data:     data,
		Metadata: make(map[string]interface{}),
	}
}

// SendEvent sends a standardized low-stock signal event.
func (p *Producer) SendEvent(ctx context.Context, topic string, event *Event) error {
	headers := map[string]string{
		"event-type":   event.Type,
		"event-id":     event.ID,
		"event-source": event.Source,
		"content-type": "application/json",
	}

	return p.SendMessage(ctx, topic, event.Subject, event, headers)
}
