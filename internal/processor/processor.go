package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agribot/internal/alerts"
	"agribot/internal/config"
	"agribot/internal/dashboard"
	"agribot/internal/handlers"
	"agribot/internal/kafka"
	"agribot/internal/logger"
	"agribot/internal/metrics"
	"agribot/internal/middleware"
	"agribot/internal/models"
	"agribot/internal/notify"
	"agribot/internal/series"
	"agribot/internal/session"
	"agribot/internal/store"
	"agribot/internal/websocket"
	"agribot/internal/worker"
)

// Processor is the top-level coordinator: it wires the reading store, the
// alerting and chart pipeline, the notification sinks and the HTTP API.
type Processor struct {
	cfg *config.Config

	store        store.Store
	producer     *kafka.Producer
	batcher      *worker.Batcher
	envelopeChan chan *models.Envelope
	hub          *websocket.Hub
	registry     *session.Registry
	live         *dashboard.Live
	httpServer   *http.Server

	wg sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{
		cfg:      cfg,
		registry: session.NewRegistry(),
		hub:      websocket.NewHub(cfg.Kafka.Producer.QueueSize),
	}
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("backend", p.cfg.Store.Backend).Bool("kafka", p.cfg.Kafka.Enabled).Msg("processor starting")

	if err := p.initStore(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize reading store")
		return fmt.Errorf("failed to initialize reading store: %w", err)
	}

	if p.cfg.Kafka.Enabled {
		if err := p.initProducer(); err != nil {
			p.store.Close()
			log.Error().Err(err).Msg("failed to initialize producer")
			return fmt.Errorf("failed to initialize producer: %w", err)
		}
		p.initBatcher()
		p.batcher.Start()
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.hub.Run(hubCtx)
	}()

	cycle := p.newCycle()
	p.live = dashboard.NewLive(cycle, p.cfg.Dashboard.PollInterval)
	p.initHTTPServer(cycle)

	serverErr := make(chan error, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.cfg.Server.Addr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
			serverErr <- err
		}
	}()

	// Stats reporting goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-serverErr:
	}

	p.shutdown(stopHub)
	return runErr
}

// initStore connects the configured reading store
func (p *Processor) initStore(ctx context.Context) error {
	log := logger.WithComponent("processor")
	switch p.cfg.Store.Backend {
	case "redis":
		rc := p.cfg.Store.Redis
		client, err := store.NewRedisClient(ctx, store.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err != nil {
			return err
		}
		p.store = store.NewRedisStore(client, rc.KeyPrefix)
		log.Info().Str("addr", rc.Addr).Str("key_prefix", rc.KeyPrefix).Msg("redis reading store initialized")
	default:
		p.store = store.NewMemoryStore(p.cfg.Store.MemoryCapacity)
		log.Info().Int("capacity", p.cfg.Store.MemoryCapacity).Msg("memory reading store initialized")
	}
	return nil
}

// initProducer initializes the Kafka producer
func (p *Processor) initProducer() error {
	log := logger.WithComponent("processor")
	producer, err := kafka.NewProducer(
		p.cfg.Kafka.Brokers,
		p.cfg.Kafka.Topic,
		p.cfg.Kafka.Producer,
	)
	if err != nil {
		return err
	}

	p.producer = producer
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.Topic).
		Msg("kafka producer initialized")
	return nil
}

// initBatcher initializes the batcher draining notifications into kafka
func (p *Processor) initBatcher() {
	pc := p.cfg.Kafka.Producer
	p.envelopeChan = make(chan *models.Envelope, pc.QueueSize)
	p.batcher = worker.NewBatcher(worker.BatcherConfig{
		Publisher:      p.producer,
		Queue:          p.envelopeChan,
		BatchSize:      pc.BatchSize,
		FlushInterval:  pc.BatchTimeout,
		PublishTimeout: pc.WriteTimeout,
	})
	metrics.WorkerQueueCapacity.Set(float64(cap(p.envelopeChan)))
}

// newCycle builds the fetch-evaluate-process pipeline and its sinks
func (p *Processor) newCycle() *dashboard.Cycle {
	ac := p.cfg.Alerts
	loc := ac.Location()

	engine := alerts.NewEngine(alerts.Config{
		Rules: alerts.Rules{
			CriticalWaterLevel: ac.CriticalWaterLevel,
			LowWaterLevel:      ac.LowWaterLevel,
			HumidityMin:        ac.HumidityMin,
			HumidityMax:        ac.HumidityMax,
			TemperatureMin:     ac.TemperatureMin,
			TemperatureMax:     ac.TemperatureMax,
		},
		Deadband: ac.Deadband,
		Location: loc,
	})

	sc := p.cfg.Series
	proc := series.NewProcessor(series.Options{
		LiveWindow:    sc.LiveWindow,
		DisplayWindow: sc.DisplayWindow,
		MinScalars:    sc.MinScalars,
		MaxBuckets:    sc.MaxBuckets,
		Location:      loc,
	})

	sinks := notify.Multi{notify.NewHub(p.hub), notify.Log{}}
	if p.envelopeChan != nil {
		sinks = append(sinks, notify.NewQueue(p.envelopeChan))
	}

	return dashboard.NewCycle(dashboard.Config{
		Store:        p.store,
		Engine:       engine,
		Processor:    proc,
		Sink:         sinks,
		Pusher:       p.hub,
		FetchTimeout: p.cfg.Store.FetchTimeout,
		Backend:      p.cfg.Store.Backend,
	})
}

// initHTTPServer initializes the HTTP server with handlers
func (p *Processor) initHTTPServer(cycle *dashboard.Cycle) {
	r := chi.NewRouter()
	r.Use(middleware.Logging, middleware.Recovery)

	api := handlers.New(handlers.Config{
		Registry:        p.registry,
		Cycle:           cycle,
		Live:            p.live,
		Hub:             p.hub,
		Writer:          p.store,
		MaxBodySize:     p.cfg.Server.MaxBodySize,
		DefaultResample: p.cfg.Series.DefaultResample,
	})
	api.Routes(r)

	r.Get("/health", p.healthHandler)
	r.Get("/stats", p.statsHandler)
	r.Handle("/metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr:         p.cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  p.cfg.Server.ReadTimeout,
		WriteTimeout: p.cfg.Server.WriteTimeout,
		IdleTimeout:  p.cfg.Server.IdleTimeout,
	}
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown(stopHub context.CancelFunc) {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop live cycles so nothing toasts anymore
	log.Info().Int("live_sessions", p.live.Len()).Msg("stopping live sessions")
	p.live.Close()

	// 3. Disconnect websocket clients
	stopHub()

	// 4. Drain queued notifications into kafka (with timeout)
	if p.batcher != nil {
		done := make(chan struct{})
		go func() {
			p.batcher.Stop()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("notification queue drained")
		case <-time.After(15 * time.Second):
			log.Warn().Msg("notification drain timeout - forcing exit")
		}

		log.Info().Msg("closing kafka producer")
		if err := p.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}

	// 5. Close the reading store
	if err := p.store.Close(); err != nil {
		log.Error().Err(err).Msg("reading store close error")
	}

	// 6. Wait for all goroutines
	p.wg.Wait()

	log.Info().Msg("processor stopped gracefully")
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.stats()
			event := log.Info().
				Int("sessions", stats.Sessions).
				Int("live_sessions", stats.LiveSessions).
				Uint64("websocket_dropped", stats.WebsocketDropped)
			if stats.Notifications != nil {
				event = event.
					Uint64("notifications_published", stats.Notifications.Processed).
					Uint64("notifications_failed", stats.Notifications.Failed).
					Uint64("producer_sent", stats.Producer.MessagesSent).
					Uint64("producer_failed", stats.Producer.MessagesFailed).
					Int("queue_size", stats.Queue.Buffered)
			}
			event.Msg("stats")
		}
	}
}
