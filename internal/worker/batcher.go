package worker

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"agribot/internal/logger"
	"agribot/internal/metrics"
	"agribot/internal/models"
)

// Publisher delivers a batch of notification envelopes in order
type Publisher interface {
	Publish(ctx context.Context, envelopes []*models.Envelope) error
}

// BatcherConfig holds batcher configuration
type BatcherConfig struct {
	Publisher      Publisher
	Queue          <-chan *models.Envelope
	BatchSize      int
	FlushInterval  time.Duration
	PublishTimeout time.Duration
}

// Batcher drains the notification queue on a single goroutine, so
// envelopes reach the publisher in the order they were queued
type Batcher struct {
	publisher      Publisher
	queue          <-chan *models.Envelope
	batchSize      int
	flushInterval  time.Duration
	publishTimeout time.Duration
	log            zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewBatcher creates a batcher; call Start to begin draining
func NewBatcher(cfg BatcherConfig) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return &Batcher{
		publisher:      cfg.Publisher,
		queue:          cfg.Queue,
		batchSize:      cfg.BatchSize,
		flushInterval:  cfg.FlushInterval,
		publishTimeout: cfg.PublishTimeout,
		log:            logger.WithComponent("notification_batcher"),
		done:           make(chan struct{}),
	}
}

// Start begins draining the queue
func (b *Batcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.log.Info().
		Int("batch_size", b.batchSize).
		Dur("flush_interval", b.flushInterval).
		Msg("starting notification batcher")
	go b.run(ctx)
}

// Stop publishes whatever is still queued and waits for the batcher to exit
func (b *Batcher) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.log.Info().Uint64("processed", b.processed.Load()).Msg("notification batcher stopped")
}

func (b *Batcher) run(ctx context.Context) {
	defer close(b.done)

	batch := make([]*models.Envelope, 0, b.batchSize)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain(batch)
			return

		case env, ok := <-b.queue:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, env)
			metrics.WorkerQueueSize.Set(float64(len(b.queue)))
			if len(batch) >= b.batchSize {
				batch = b.flush(batch)
			}

		case <-ticker.C:
			batch = b.flush(batch)
		}
	}
}

// drain empties the queue without blocking after a stop request
func (b *Batcher) drain(batch []*models.Envelope) {
	for {
		select {
		case env, ok := <-b.queue:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, env)
			if len(batch) >= b.batchSize {
				batch = b.flush(batch)
			}
		default:
			b.flush(batch)
			metrics.WorkerQueueSize.Set(0)
			return
		}
	}
}

// flush publishes batch and returns it emptied. A failed batch is dropped;
// the publisher has already retried it.
func (b *Batcher) flush(batch []*models.Envelope) []*models.Envelope {
	if len(batch) == 0 {
		return batch
	}

	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(uint64(len(batch)))
			metrics.WorkerFailedTotal.Add(float64(len(batch)))
			b.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("notification publish panic recovered")
			metrics.PanicsRecovered.WithLabelValues("batcher").Inc()
		}
	}()

	// Detached from the run context so the final flush on Stop still goes out
	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()

	start := time.Now()
	err := b.publisher.Publish(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err != nil {
		b.failed.Add(uint64(len(batch)))
		metrics.WorkerFailedTotal.Add(float64(len(batch)))
		b.log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Str("first_session", batch[0].SessionID).
			Dur("duration", duration).
			Msg("dropping notification batch")
	} else {
		b.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		b.log.Debug().Int("batch_size", len(batch)).Dur("duration", duration).Msg("notification batch published")
	}

	clear(batch)
	return batch[:0]
}

// Stats returns batcher statistics
func (b *Batcher) Stats() Stats {
	return Stats{
		Processed: b.processed.Load(),
		Failed:    b.failed.Load(),
	}
}

// Stats holds processed and failed counts
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}
