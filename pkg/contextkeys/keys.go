// Package contextkeys provides centralized context key definitions
//
// Defining keys in one place prevents typos, documents dependencies, and makes
// key usage discoverable. pkg/observability defines its own request-ID and
// logger keys (see observability.WithRequestID and observability.WithLogger),
// which are distinct from the keys here.
//
// USAGE PATTERN:
//   import "github.com/platinummonkey/chrysalis/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.RequestIDKey, reqID)
//   reqID := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string assigned to an
	// inbound /ingest or /approve HTTP call.
	// Set by: WithRequestID
	// Used by: GetRequestID
	// Type: string
	RequestIDKey Key = "request_id"

	// JobIDKey contains the ingest job ID a goroutine is processing.
	// Set by: WithJobID
	// Used by: GetJobID
	// Type: string
	JobIDKey Key = "job_id"

	// LoggerKey contains *observability.Logger
	// Set by: WithLogger
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithJobID adds the ingest job ID to the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetJobID retrieves the ingest job ID from context
func GetJobID(ctx context.Context) string {
	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		return jobID
	}
	return ""
}
