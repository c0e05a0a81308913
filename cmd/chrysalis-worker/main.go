// Command chrysalis-worker runs the ingest job coordinator (C9): it pops
// ingest jobs off the queue, infers/diffs/promotes/validates them against
// the schema registry, and writes accepted documents through to durable
// storage or the dead-letter sink. A side HTTP server exposes health and
// Prometheus metrics endpoints for orchestration probes.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/chrysalis/pkg/config"
	"github.com/platinummonkey/chrysalis/pkg/ingest/dlq"
	dlqmem "github.com/platinummonkey/chrysalis/pkg/ingest/dlq/memory"
	dlqredis "github.com/platinummonkey/chrysalis/pkg/ingest/dlq/redis"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/promotion"
	"github.com/platinummonkey/chrysalis/pkg/ingest/queue"
	"github.com/platinummonkey/chrysalis/pkg/ingest/registry"
	regmem "github.com/platinummonkey/chrysalis/pkg/ingest/registry/memory"
	regpg "github.com/platinummonkey/chrysalis/pkg/ingest/registry/postgres"
	"github.com/platinummonkey/chrysalis/pkg/ingest/store"
	storemem "github.com/platinummonkey/chrysalis/pkg/ingest/store/memory"
	storepg "github.com/platinummonkey/chrysalis/pkg/ingest/store/postgres"
	"github.com/platinummonkey/chrysalis/pkg/ingest/worker"
	"github.com/platinummonkey/chrysalis/pkg/observability"
)

func main() {
	bootLogger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx := context.Background()
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	metricsRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(metricsRegistry)

	q, err := queue.New(queue.Config{
		URL:       cfg.Ingest.QueueURL,
		QueueName: cfg.Ingest.QueueName,
		Password:  cfg.Ingest.QueuePassword,
		DB:        cfg.Ingest.QueueDB,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to ingest queue")
		os.Exit(1)
	}
	defer q.Close()

	schemaRegistry, closeRegistry, err := buildRegistry(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize schema registry")
		os.Exit(1)
	}
	if closeRegistry != nil {
		defer closeRegistry()
	}

	writer, closeWriter, err := buildWriter(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize durable writer")
		os.Exit(1)
	}
	if closeWriter != nil {
		defer closeWriter()
	}

	dlqSink, dlqRedisSink, closeDLQ, err := buildDLQ(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize dead-letter sink")
		os.Exit(1)
	}
	if closeDLQ != nil {
		defer closeDLQ()
	}

	coordinator, err := worker.New(worker.Config{
		BLPopTimeout:        cfg.Ingest.BLPopTimeout,
		GoverningSchema:     cfg.Ingest.GoverningSchema,
		ValidatorConfig:     cfg.Ingest.ValidatorConfig,
		PromotionThresholds: cfg.Ingest.PromotionThresholds,
		PromotionPolicyKind: cfg.Ingest.PromotionPolicyKind,
	}, worker.Deps{
		Queue:    q,
		Registry: schemaRegistry,
		Writer:   writer,
		DLQ:      dlqSink,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		logger.WithError(err).Error("failed to construct job coordinator")
		os.Exit(1)
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go func() {
		if err := coordinator.Run(workerCtx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("coordinator run loop exited with error")
		}
	}()

	var thresholdsWatcher *config.ThresholdsWatcher
	if cfg.Ingest.ThresholdsFile != "" {
		thresholdsWatcher, err = config.WatchThresholdsFile(cfg.Ingest.ThresholdsFile, logger, func(t promotion.Thresholds) {
			if err := coordinator.UpdateThresholds(t); err != nil {
				logger.WithError(err).Error("failed to apply reloaded promotion thresholds")
			}
		})
		if err != nil {
			logger.WithError(err).Error("failed to start thresholds file watcher")
		}
	}

	var retrySweep *cron.Cron
	if dlqRedisSink != nil {
		retrySweep = cron.New()
		_, err := retrySweep.AddFunc("@every 5m", func() {
			sweepDLQ(context.Background(), dlqRedisSink, q, logger, metrics)
		})
		if err != nil {
			logger.WithError(err).Error("failed to schedule DLQ retry sweep")
		} else {
			retrySweep.Start()
		}
	}

	healthChecker := observability.NewHealthChecker(nil, nil).WithQueueRedis(q.Client())
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, healthChecker)
	observability.RegisterMetricsEndpoint(healthMux, metricsRegistry)

	healthServer := &http.Server{
		Addr:         ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("health/metrics server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, healthServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancelWorker()
		if retrySweep != nil {
			retrySweep.Stop()
		}
		if thresholdsWatcher != nil {
			return thresholdsWatcher.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}
}

func buildRegistry(cfg *config.Config) (registry.Registry, func() error, error) {
	switch cfg.Ingest.RegistryBackend {
	case "postgres":
		reg, err := regpg.New(regpg.Config{
			URL:               cfg.Ingest.RegistryPostgresURL,
			MaxConns:          cfg.Ingest.RegistryMaxConns,
			MinConns:          cfg.Ingest.RegistryMinConns,
			Timeout:           cfg.Ingest.RegistryTimeout,
			EqualityCacheSize: cfg.Ingest.RegistryEqualityCacheSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return reg, reg.Close, nil
	default:
		return regmem.New(), nil, nil
	}
}

func buildWriter(cfg *config.Config) (store.Writer, func() error, error) {
	switch cfg.Ingest.StoreBackend {
	case "postgres":
		w, err := storepg.New(cfg.Ingest.StorePostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	default:
		return storemem.New(), nil, nil
	}
}

// buildDLQ returns the configured dlq.Sink plus, when it is the
// Redis-backed implementation, the concrete *dlqredis.Sink so the retry
// sweep can call its Drain method (not part of the dlq.Sink interface).
func buildDLQ(cfg *config.Config, logger *observability.Logger) (dlq.Sink, *dlqredis.Sink, func() error, error) {
	switch cfg.Ingest.DLQBackend {
	case "redis":
		sink, err := dlqredis.New(dlqredis.Config{
			URL:      cfg.Ingest.DLQRedisURL,
			DLQName:  cfg.Ingest.DLQName,
			Password: cfg.Ingest.DLQPassword,
			DB:       cfg.Ingest.DLQDB,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return sink, sink, sink.Close, nil
	default:
		return dlqmem.New(), nil, nil, nil
	}
}

// sweepDLQ drains a bounded batch of dead-lettered documents and re-pushes
// each as a single-document retry job, giving a transient failure (a
// registry outage, a momentary validation false-negative) another pass
// through the pipeline instead of leaving it stranded.
func sweepDLQ(ctx context.Context, sink *dlqredis.Sink, q *queue.Queue, logger *observability.Logger, metrics *observability.Metrics) {
	const batchSize = 100
	envelopes, err := sink.Drain(ctx, batchSize)
	if err != nil {
		logger.WithError(err).Error("dlq retry sweep: drain failed")
		return
	}
	if len(envelopes) == 0 {
		return
	}
	requeued := 0
	for _, envelope := range envelopes {
		job := model.Job{
			JobID:      uuid.NewString(),
			Source:     "dlq-retry",
			ReceivedAt: time.Now(),
			Documents:  []model.Document{envelope.Payload},
		}
		if err := q.Push(ctx, job); err != nil {
			logger.WithError(err).Error("dlq retry sweep: failed to requeue job")
			continue
		}
		requeued++
	}
	logger.Infof("dlq retry sweep: requeued %d/%d entries", requeued, len(envelopes))
}
