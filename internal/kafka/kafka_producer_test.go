package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"agribot/internal/config"
	"agribot/internal/models"
)

// skipIfNoKafka skips the test if Kafka is not available
func skipIfNoKafka(t *testing.T) {
	if os.Getenv("KAFKA_TEST") != "1" {
		t.Skip("Skipping Kafka integration test. Set KAFKA_TEST=1 to run.")
	}
}

func testEnvelope() *models.Envelope {
	event := &models.NotificationEvent{
		ID:               "evt-1",
		Timestamp:        "2024-01-15 10:00:00",
		Message:          "**2024-01-15 10:00:00**: *Water level is low*.",
		Icon:             "🚰",
		Category:         models.CategoryLowWater,
		Transition:       models.TransitionActivated,
		ReadingTimestamp: 1705312800000,
		EmittedAt:        time.Date(2024, 1, 15, 10, 0, 1, 0, time.UTC),
	}
	return models.NewEnvelope(event, "session-1", "user-1")
}

func TestNewProducerValidation(t *testing.T) {
	cfg := config.Default().Kafka

	if _, err := NewProducer(nil, cfg.Topic, cfg.Producer); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewProducer(cfg.Brokers, "", cfg.Producer); err == nil {
		t.Error("expected error without topic")
	}
}

func TestPublishAfterClose(t *testing.T) {
	cfg := config.Default().Kafka
	p, err := NewProducer(cfg.Brokers, cfg.Topic, cfg.Producer)
	if err != nil {
		t.Fatalf("NewProducer() error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	envs := []*models.Envelope{testEnvelope()}
	if err := p.Publish(context.Background(), envs); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
	if err := p.HealthCheck(context.Background()); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed from HealthCheck, got %v", err)
	}
}

func TestMessageKeyedBySession(t *testing.T) {
	msg, err := message(testEnvelope())
	if err != nil {
		t.Fatalf("message() error: %v", err)
	}

	if string(msg.Key) != "session-1" {
		t.Errorf("key = %q, want session-1", msg.Key)
	}
	if !msg.Time.Equal(time.Date(2024, 1, 15, 10, 0, 1, 0, time.UTC)) {
		t.Errorf("time = %v, want emission time", msg.Time)
	}

	got := map[string]string{}
	for _, h := range msg.Headers {
		got[h.Key] = string(h.Value)
	}
	want := map[string]string{
		"session_id": "session-1",
		"user_id":    "user-1",
		"category":   "low_water",
		"transition": "activated",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("header %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestMessageValueIsFlatRecord(t *testing.T) {
	msg, err := message(testEnvelope())
	if err != nil {
		t.Fatalf("message() error: %v", err)
	}

	var rec Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		t.Fatalf("value is not a record: %v", err)
	}
	if rec.EventID != "evt-1" || rec.SessionID != "session-1" || rec.UserID != "user-1" {
		t.Errorf("identity fields = %+v", rec)
	}
	if rec.Category != "low_water" || rec.Transition != "activated" {
		t.Errorf("category/transition = %q/%q", rec.Category, rec.Transition)
	}
	if rec.ReadingTimestamp != 1705312800000 {
		t.Errorf("reading_timestamp = %d", rec.ReadingTimestamp)
	}

	var raw map[string]any
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		t.Fatal(err)
	}
	if _, nested := raw["event"]; nested {
		t.Error("record should not nest the envelope event")
	}
}

func TestRetainedKeepsOnlyFailedMessages(t *testing.T) {
	p := &Producer{}
	msgs := []kafka.Message{
		{Value: []byte("a")},
		{Value: []byte("bb")},
		{Value: []byte("ccc")},
	}
	werr := kafka.WriteErrors{nil, errors.New("leader not available"), nil}

	left := p.retained(msgs, werr)
	if len(left) != 1 || string(left[0].Value) != "bb" {
		t.Fatalf("retained = %v, want only the failed message", left)
	}

	stats := p.Stats()
	if stats.MessagesSent != 2 || stats.BytesWritten != 4 {
		t.Errorf("stats = %+v, want 2 sent / 4 bytes", stats)
	}
}

func TestRetainedWholeBatchOnPlainError(t *testing.T) {
	p := &Producer{}
	msgs := []kafka.Message{{Value: []byte("a")}, {Value: []byte("b")}}

	left := p.retained(msgs, errors.New("dial tcp: connection refused"))
	if len(left) != 2 {
		t.Errorf("retained %d messages, want 2", len(left))
	}
	if p.Stats().MessagesSent != 0 {
		t.Error("nothing should count as sent")
	}
}

func TestCodec(t *testing.T) {
	tests := map[string]compress.Compression{
		"gzip":   compress.Gzip,
		"snappy": compress.Snappy,
		"lz4":    compress.Lz4,
		"zstd":   compress.Zstd,
		"":       compress.None,
		"brotli": compress.None,
	}
	for name, want := range tests {
		if got := codec(name); got != want {
			t.Errorf("codec(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestProducerPublish(t *testing.T) {
	skipIfNoKafka(t)

	cfg := config.Default().Kafka
	producer, err := NewProducer(cfg.Brokers, cfg.Topic, cfg.Producer)
	if err != nil {
		t.Fatalf("failed to create producer: %v", err)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := producer.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
	if err := producer.Publish(ctx, []*models.Envelope{testEnvelope()}); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	stats := producer.Stats()
	if stats.MessagesSent != 1 {
		t.Errorf("expected 1 message sent, got %d", stats.MessagesSent)
	}
}
