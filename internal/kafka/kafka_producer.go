package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"agribot/internal/config"
	"agribot/internal/logger"
	"agribot/internal/metrics"
	"agribot/internal/models"
)

// Producer errors
var (
	ErrProducerClosed = errors.New("producer is closed")
	ErrPublishFailed  = errors.New("notification publish failed")
)

var codecs = map[string]compress.Compression{
	"gzip":   compress.Gzip,
	"snappy": compress.Snappy,
	"lz4":    compress.Lz4,
	"zstd":   compress.Zstd,
}

// codec returns the compression codec for name; unknown names disable
// compression
func codec(name string) compress.Compression {
	return codecs[name]
}

// Record is the wire form of one notification on the topic
type Record struct {
	EventID          string    `json:"event_id"`
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	Category         string    `json:"category"`
	Transition       string    `json:"transition"`
	Icon             string    `json:"icon"`
	Message          string    `json:"message"`
	Timestamp        string    `json:"timestamp"`
	ReadingTimestamp int64     `json:"reading_timestamp"`
	EmittedAt        time.Time `json:"emitted_at"`
}

// NewRecord flattens an envelope into its wire record
func NewRecord(env *models.Envelope) Record {
	ev := env.Event
	return Record{
		EventID:          ev.ID,
		SessionID:        env.SessionID,
		UserID:           env.UserID,
		Category:         string(ev.Category),
		Transition:       string(ev.Transition),
		Icon:             ev.Icon,
		Message:          ev.Message,
		Timestamp:        ev.Timestamp,
		ReadingTimestamp: ev.ReadingTimestamp,
		EmittedAt:        ev.EmittedAt,
	}
}

// message encodes an envelope. The key is the partition key so the hash
// balancer keeps one session's notifications on one partition.
func message(env *models.Envelope) (kafka.Message, error) {
	value, err := json.Marshal(NewRecord(env))
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(env.PartitionKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: "session_id", Value: []byte(env.SessionID)},
			{Key: "user_id", Value: []byte(env.UserID)},
			{Key: "category", Value: []byte(env.Event.Category)},
			{Key: "transition", Value: []byte(env.Event.Transition)},
		},
		Time: env.Event.EmittedAt,
	}, nil
}

// Producer publishes notification records to one topic
type Producer struct {
	writer     *kafka.Writer
	brokers    []string
	maxRetries int
	backoff    time.Duration
	closed     atomic.Bool

	// Metrics
	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// NewProducer creates a producer for topic
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	// Retries are handled by Publish, which resends only failed messages
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec(cfg.Compression),
		MaxAttempts:  1,
	}

	return &Producer{
		writer:     writer,
		brokers:    brokers,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}, nil
}

// Publish writes envelopes in order. Messages rejected by the broker are
// retried with exponential backoff; the ones still failing after the last
// attempt are reported in the returned error.
func (p *Producer) Publish(ctx context.Context, envelopes []*models.Envelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	log := logger.WithComponent("kafka_producer")

	pending := make([]kafka.Message, 0, len(envelopes))
	for _, env := range envelopes {
		msg, err := message(env)
		if err != nil {
			log.Error().Err(err).Str("event_id", env.Event.ID).Msg("failed to encode notification")
			p.fail(1)
			continue
		}
		pending = append(pending, msg)
	}

	backoff := p.backoff
	for attempt := 0; len(pending) > 0; attempt++ {
		start := time.Now()
		err := p.writer.WriteMessages(ctx, pending...)
		metrics.KafkaPublishDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			p.sent(pending)
			return nil
		}

		pending = p.retained(pending, err)
		if attempt >= p.maxRetries || ctx.Err() != nil {
			p.fail(len(pending))
			return fmt.Errorf("%w: %d messages after %d attempts: %w", ErrPublishFailed, len(pending), attempt+1, err)
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("pending", len(pending)).
			Dur("backoff", backoff).
			Msg("retrying notification publish")
		metrics.KafkaPublishRetries.Inc()

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			p.fail(len(pending))
			return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
		}
	}
	return nil
}

// retained records the delivered part of a partial failure and returns the
// messages to send again
func (p *Producer) retained(msgs []kafka.Message, err error) []kafka.Message {
	var werrs kafka.WriteErrors
	if !errors.As(err, &werrs) || len(werrs) != len(msgs) {
		return msgs
	}

	var delivered, failed []kafka.Message
	for i, e := range werrs {
		if e == nil {
			delivered = append(delivered, msgs[i])
		} else {
			failed = append(failed, msgs[i])
		}
	}
	p.sent(delivered)
	return failed
}

func (p *Producer) sent(msgs []kafka.Message) {
	var n uint64
	for _, m := range msgs {
		n += uint64(len(m.Value))
	}
	p.messagesSent.Add(uint64(len(msgs)))
	p.bytesWritten.Add(n)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(len(msgs)))
	metrics.KafkaBytesWritten.Add(float64(n))
}

func (p *Producer) fail(n int) {
	p.messagesFailed.Add(uint64(n))
	metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(n))
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// HealthCheck dials the brokers and succeeds once one answers
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return fmt.Errorf("no broker reachable: %w", lastErr)
}
