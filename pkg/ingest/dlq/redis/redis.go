// Package redis implements pkg/ingest/dlq.Sink backed by Redis: explicit
// dial/read/write timeouts via redis.ParseURL, envelope shape and
// swallow-on-failure delivery behavior matching the rest of the ingest
// pipeline's Redis clients.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/chrysalis/pkg/ingest/dlq"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/observability"
)

// Config configures the Redis-backed dead-letter sink.
type Config struct {
	URL      string
	DLQName  string
	Password string
	DB       int
}

// Sink pushes dead-lettered documents onto a Redis list.
type Sink struct {
	client  *redis.Client
	dlqName string
	logger  *observability.Logger
}

var _ dlq.Sink = (*Sink)(nil)

// New parses cfg.URL, applies explicit connection timeouts, and verifies
// connectivity with a Ping before returning.
func New(cfg Config, logger *observability.Logger) (*Sink, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	name := cfg.DLQName
	if name == "" {
		name = "chrysalis:dlq"
	}

	return &Sink{client: client, dlqName: name, logger: logger}, nil
}

// NewWithClient wraps an already-constructed *redis.Client, used by tests
// backed by miniredis.
func NewWithClient(client *redis.Client, dlqName string, logger *observability.Logger) *Sink {
	return &Sink{client: client, dlqName: dlqName, logger: logger}
}

// Close releases the underlying Redis connection.
func (s *Sink) Close() error {
	return s.client.Close()
}

// Send implements dlq.Sink. Failures are logged and swallowed: a
// background worker's dead-letter delivery must never propagate up and
// abort the job it was trying to quarantine.
func (s *Sink) Send(ctx context.Context, payload model.Document, reason string) {
	envelope := dlq.Envelope{Payload: payload, Reason: reason, Timestamp: time.Now()}
	data, err := json.Marshal(envelope)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("dlq: failed to marshal envelope")
		}
		return
	}
	if err := s.client.LPush(ctx, s.dlqName, data).Err(); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("dlq: failed to push to redis")
		}
	}
}

// HealthCheck implements dlq.Sink.
func (s *Sink) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Peek returns up to limit envelopes without removing them from the list,
// oldest first, for the dlq-dump CLI subcommand's read-only inspection.
func (s *Sink) Peek(ctx context.Context, limit int) ([]dlq.Envelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.dlqName, int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	envelopes := make([]dlq.Envelope, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var envelope dlq.Envelope
		if err := json.Unmarshal([]byte(raw[i]), &envelope); err != nil {
			if s.logger != nil {
				s.logger.WithError(err).Error("dlq: failed to unmarshal peeked envelope")
			}
			continue
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

// Drain pops up to limit envelopes off the tail of the dead-letter list,
// oldest first, for the retry sweep to inspect. Entries it decides not to
// requeue are the caller's responsibility to re-push.
func (s *Sink) Drain(ctx context.Context, limit int) ([]dlq.Envelope, error) {
	envelopes := make([]dlq.Envelope, 0, limit)
	for i := 0; i < limit; i++ {
		data, err := s.client.RPop(ctx, s.dlqName).Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return envelopes, err
		}
		var envelope dlq.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			if s.logger != nil {
				s.logger.WithError(err).Error("dlq: failed to unmarshal drained envelope")
			}
			continue
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}
