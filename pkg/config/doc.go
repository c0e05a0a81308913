// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CHRYSALIS_HOST="0.0.0.0"
//	CHRYSALIS_PORT="8080"
//	CHRYSALIS_HEALTH_PORT="8081"
//	CHRYSALIS_READ_TIMEOUT="30s"
//	CHRYSALIS_WRITE_TIMEOUT="30s"
//
// Ingest pipeline settings:
//
//	CHRYSALIS_INGEST_QUEUE_URL="redis://localhost:6379"
//	CHRYSALIS_INGEST_QUEUE_NAME="chrysalis:ingest:queue"
//	CHRYSALIS_INGEST_REGISTRY_BACKEND="postgres"  # memory, postgres
//	CHRYSALIS_INGEST_REGISTRY_POSTGRES_URL="postgres://localhost/chrysalis"
//	CHRYSALIS_INGEST_STORE_BACKEND="postgres"  # memory, postgres
//	CHRYSALIS_INGEST_DLQ_BACKEND="redis"  # memory, redis
//	CHRYSALIS_INGEST_GOVERNING_SCHEMA="latest"  # latest, candidate
//	CHRYSALIS_INGEST_PROMOTION_POLICY="drift_rule"  # drift_rule, coverage
//
// Observability settings:
//
//	CHRYSALIS_LOG_LEVEL="info"  # debug, info, warn, error
//	CHRYSALIS_METRICS_ENABLED="true"
//	CHRYSALIS_OTEL_ENABLED="true"
//	CHRYSALIS_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Registry backend: %s\n", cfg.Ingest.RegistryBackend)
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/ingest: consumes the Ingest configuration section
//   - pkg/observability: uses observability configuration
package config
