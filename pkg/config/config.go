package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/chrysalis/pkg/ingest/promotion"
	"github.com/platinummonkey/chrysalis/pkg/ingest/validate"
	"github.com/platinummonkey/chrysalis/pkg/ingest/worker"
	"github.com/platinummonkey/chrysalis/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Ingest pipeline configuration
	Ingest IngestConfig
}

// IngestConfig holds the ingest pipeline's tunables: where the registry,
// durable store and dead-letter sink persist, the queue/DLQ naming, the
// job coordinator's blocking-pop timeout, and the promotion/validation
// policy knobs.
type IngestConfig struct {
	QueueURL      string
	QueueName     string
	QueuePassword string
	QueueDB       int
	BLPopTimeout  time.Duration

	// RegistryBackend selects the pkg/ingest/registry implementation:
	// "memory" (default, for local dev) or "postgres".
	RegistryBackend           string
	RegistryPostgresURL       string
	RegistryMaxConns          int
	RegistryMinConns          int
	RegistryTimeout           time.Duration
	RegistryEqualityCacheSize int

	// StoreBackend selects the pkg/ingest/store implementation: "memory"
	// or "postgres".
	StoreBackend     string
	StorePostgresURL string

	// DLQBackend selects the pkg/ingest/dlq implementation: "memory" or
	// "redis".
	DLQBackend  string
	DLQRedisURL string
	DLQName     string
	DLQPassword string
	DLQDB       int

	GoverningSchema     worker.GoverningSchema
	PromotionPolicyKind promotion.Kind
	PromotionThresholds promotion.Thresholds
	ValidatorConfig     validate.Config

	// ThresholdsFile, when non-empty, is watched for writes and reloaded
	// into the running worker's promotion policy without a restart.
	ThresholdsFile string

	// ApprovalToken gates the manual /approve endpoint; when empty, the
	// endpoint performs no token check.
	ApprovalToken string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Observability: loadObservabilityConfig(),
		Ingest:        loadIngestConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CHRYSALIS_HOST", "0.0.0.0"),
		Port:            getEnv("CHRYSALIS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CHRYSALIS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CHRYSALIS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CHRYSALIS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CHRYSALIS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CHRYSALIS_HEALTH_PORT", "9090"),
	}
}

// loadIngestConfig loads the ingest pipeline's configuration from
// environment variables, falling back to each sub-package's own documented
// defaults (promotion.DefaultThresholds, validate.DefaultConfig, etc.) when
// unset.
func loadIngestConfig() IngestConfig {
	thresholds := promotion.DefaultThresholds()
	if v := getEnv("CHRYSALIS_INGEST_ADDED_MAJOR_PCT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.AddedMajorPct = f
		}
	}
	if v := getEnv("CHRYSALIS_INGEST_REMOVED_MAJOR_PREV_PCT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.RemovedMajorPrevPct = f
		}
	}
	if v := getEnv("CHRYSALIS_INGEST_TYPE_SHIFT_MAJOR_PCT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.TypeShiftMajorPct = f
		}
	}
	if v := getEnv("CHRYSALIS_INGEST_PROMOTE_PCT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.PromotePct = f
		}
	}

	validatorCfg := validate.DefaultConfig()
	if v := getEnv("CHRYSALIS_INGEST_VALIDATOR_MODE", ""); strings.ToLower(v) == "lenient" {
		validatorCfg.Mode = validate.ModeLenient
	}
	if v := getEnv("CHRYSALIS_INGEST_REQUIRED_PCT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			validatorCfg.RequiredPct = f
		}
	}
	validatorCfg.AllowTypePromotion = getEnvBool("CHRYSALIS_INGEST_ALLOW_TYPE_PROMOTION", validatorCfg.AllowTypePromotion)

	governing := worker.GoverningLatest
	if strings.ToLower(getEnv("CHRYSALIS_INGEST_GOVERNING_SCHEMA", "latest")) == "candidate" {
		governing = worker.GoverningCandidate
	}

	policyKind := promotion.KindDriftRule
	if strings.ToLower(getEnv("CHRYSALIS_INGEST_PROMOTION_POLICY", "drift_rule")) == "coverage" {
		policyKind = promotion.KindCoverage
	}

	return IngestConfig{
		QueueURL:      getEnv("CHRYSALIS_INGEST_QUEUE_URL", "redis://localhost:6379"),
		QueueName:     getEnv("CHRYSALIS_INGEST_QUEUE_NAME", "chrysalis:ingest:queue"),
		QueuePassword: getEnv("CHRYSALIS_INGEST_QUEUE_PASSWORD", ""),
		QueueDB:       getEnvInt("CHRYSALIS_INGEST_QUEUE_DB", 0),
		BLPopTimeout:  getEnvDuration("CHRYSALIS_INGEST_BLPOP_TIMEOUT", 30*time.Second),

		RegistryBackend:           getEnv("CHRYSALIS_INGEST_REGISTRY_BACKEND", "memory"),
		RegistryPostgresURL:       getEnv("CHRYSALIS_INGEST_REGISTRY_POSTGRES_URL", ""),
		RegistryMaxConns:          getEnvInt("CHRYSALIS_INGEST_REGISTRY_MAX_CONNS", 10),
		RegistryMinConns:          getEnvInt("CHRYSALIS_INGEST_REGISTRY_MIN_CONNS", 2),
		RegistryTimeout:           getEnvDuration("CHRYSALIS_INGEST_REGISTRY_TIMEOUT", 5*time.Second),
		RegistryEqualityCacheSize: getEnvInt("CHRYSALIS_INGEST_REGISTRY_EQUALITY_CACHE_SIZE", 256),

		StoreBackend:     getEnv("CHRYSALIS_INGEST_STORE_BACKEND", "memory"),
		StorePostgresURL: getEnv("CHRYSALIS_INGEST_STORE_POSTGRES_URL", ""),

		DLQBackend:  getEnv("CHRYSALIS_INGEST_DLQ_BACKEND", "memory"),
		DLQRedisURL: getEnv("CHRYSALIS_INGEST_DLQ_REDIS_URL", ""),
		DLQName:     getEnv("CHRYSALIS_INGEST_DLQ_NAME", "chrysalis:ingest:dlq"),
		DLQPassword: getEnv("CHRYSALIS_INGEST_DLQ_PASSWORD", ""),
		DLQDB:       getEnvInt("CHRYSALIS_INGEST_DLQ_DB", 0),

		GoverningSchema:     governing,
		PromotionPolicyKind: policyKind,
		PromotionThresholds: thresholds,
		ValidatorConfig:     validatorCfg,
		ThresholdsFile:      getEnv("CHRYSALIS_INGEST_THRESHOLDS_FILE", ""),

		ApprovalToken: getEnv("CHRYSALIS_INGEST_APPROVAL_TOKEN", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CHRYSALIS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CHRYSALIS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CHRYSALIS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CHRYSALIS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CHRYSALIS_OTEL_SERVICE_NAME", "chrysalis-ingest"),
		OTelServiceVersion: getEnv("CHRYSALIS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CHRYSALIS_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate ingest backend selection
	switch c.Ingest.RegistryBackend {
	case "memory":
	case "postgres":
		if c.Ingest.RegistryPostgresURL == "" {
			return fmt.Errorf("registry postgres URL is required when registry backend is postgres")
		}
	default:
		return fmt.Errorf("invalid registry backend: %s (must be memory or postgres)", c.Ingest.RegistryBackend)
	}

	switch c.Ingest.StoreBackend {
	case "memory":
	case "postgres":
		if c.Ingest.StorePostgresURL == "" {
			return fmt.Errorf("store postgres URL is required when store backend is postgres")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be memory or postgres)", c.Ingest.StoreBackend)
	}

	switch c.Ingest.DLQBackend {
	case "memory":
	case "redis":
		if c.Ingest.DLQRedisURL == "" {
			return fmt.Errorf("DLQ redis URL is required when DLQ backend is redis")
		}
	default:
		return fmt.Errorf("invalid DLQ backend: %s (must be memory or redis)", c.Ingest.DLQBackend)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
