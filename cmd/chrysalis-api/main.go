// Command chrysalis-api exposes the ingest pipeline's producer-facing
// surface: POST /ingest enqueues a batch of documents as a job, and
// POST /approve manually promotes a pending candidate schema version.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/chrysalis/pkg/config"
	"github.com/platinummonkey/chrysalis/pkg/httputil"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/queue"
	"github.com/platinummonkey/chrysalis/pkg/ingest/registry"
	regmem "github.com/platinummonkey/chrysalis/pkg/ingest/registry/memory"
	regpg "github.com/platinummonkey/chrysalis/pkg/ingest/registry/postgres"
	"github.com/platinummonkey/chrysalis/pkg/observability"
)

type server struct {
	queue    *queue.Queue
	registry registry.Registry
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
}

type ingestRequest struct {
	Source    string           `json:"source"`
	Documents []model.Document `json:"documents"`
}

type ingestResponse struct {
	JobID          string `json:"job_id"`
	DocumentsCount int    `json:"documents_count"`
}

type approveRequest struct {
	Version int `json:"version"`
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		httputil.WriteBadRequest(w, "documents must not be empty")
		return
	}

	job := model.Job{
		JobID:      uuid.NewString(),
		Source:     req.Source,
		ReceivedAt: time.Now(),
		Documents:  req.Documents,
	}

	if err := s.queue.Push(r.Context(), job); err != nil {
		s.logger.WithError(err).Error("api: failed to enqueue ingest job")
		httputil.WriteInternalError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.IngestJobsEnqueuedTotal.Inc()
	}

	httputil.WriteCreated(w, ingestResponse{JobID: job.JobID, DocumentsCount: len(job.Documents)})
}

func (s *server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ingest.ApprovalToken != "" {
		token := r.Header.Get("Authorization")
		if token != "Bearer "+s.cfg.Ingest.ApprovalToken {
			httputil.WriteUnauthorized(w, "invalid or missing approval token")
			return
		}
	}

	var req approveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, int64(req.Version), "version") {
		return
	}

	rec, err := s.registry.GetByVersion(r.Context(), req.Version)
	if err != nil {
		s.logger.WithError(err).Error("api: registry GetByVersion failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if rec == nil {
		httputil.WriteNotFoundError(w, "schema version not found")
		return
	}
	if rec.PendingPromotion {
		httputil.WriteSuccessMessage(w, "already promoted", rec)
		return
	}

	if err := s.registry.MarkPromoted(r.Context(), req.Version); err != nil {
		s.logger.WithError(err).Error("api: registry MarkPromoted failed")
		httputil.WriteInternalError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.IngestPromotionsTotal.Inc()
	}

	httputil.WriteSuccessMessage(w, "promoted", map[string]int{"version": req.Version})
}

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

	srv := &server{queue: q, registry: schemaRegistry, cfg: cfg, logger: logger, metrics: metrics}

	router := mux.NewRouter()
	router.Use(httputil.RecoveryMiddleware, httputil.LoggingMiddleware, httputil.ContentTypeMiddleware)
	router.HandleFunc("/ingest", srv.handleIngest).Methods(http.MethodPost)
	router.HandleFunc("/approve", srv.handleApprove).Methods(http.MethodPost)

	healthChecker := observability.NewHealthChecker(nil, nil).WithQueueRedis(q.Client())

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "chrysalis-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

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
		logger.Infof("api server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
		}
	}()
	go func() {
		logger.Infof("health/metrics server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
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
