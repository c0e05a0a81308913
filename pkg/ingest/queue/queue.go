// Package queue wraps the ingest queue (§6): producers LPush a job
// envelope, the job coordinator BLPops it with a timeout. Grounded on the
// teacher's pkg/storage/postgres/redis.go client-construction style.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Config configures the Redis-backed ingest queue.
type Config struct {
	URL       string
	QueueName string
	Password  string
	DB        int
}

// DefaultQueueName is the Redis list key producers push jobs onto.
const DefaultQueueName = "chrysalis:ingest:queue"

// Queue is the Redis-backed ingest job queue.
type Queue struct {
	client *redis.Client
	name   string
}

// New parses cfg.URL, applies explicit connection timeouts, and verifies
// connectivity with a Ping before returning.
func New(cfg Config) (*Queue, error) {
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
	opts.ReadTimeout = 0 // BLPop blocks for caller-supplied timeouts, not the client read deadline
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	name := cfg.QueueName
	if name == "" {
		name = DefaultQueueName
	}
	return &Queue{client: client, name: name}, nil
}

// NewWithClient wraps an already-constructed *redis.Client, used by tests
// backed by miniredis.
func NewWithClient(client *redis.Client, queueName string) *Queue {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Queue{client: client, name: queueName}
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Push enqueues a job by LPush-ing its JSON encoding onto the queue.
func (q *Queue) Push(ctx context.Context, job model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.name, data).Err()
}

// InvalidPayloadError indicates a value popped off the queue failed to
// JSON-decode into a model.Job. Raw preserves the undecodable bytes so a
// caller can dead-letter the evidence instead of discarding it.
type InvalidPayloadError struct {
	Raw []byte
	Err error
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("queue: invalid job payload: %v", e.Err)
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

// Pop blocks for up to timeout waiting for a job, returning (nil, nil) on
// timeout with no job available. A zero timeout blocks indefinitely,
// matching go-redis/v8's BLPOP semantics. A payload that fails to decode
// returns an *InvalidPayloadError carrying the raw bytes rather than a bare
// error, so the caller can dead-letter it instead of losing it.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*model.Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPop returns [key, value]; result[0] is the queue name.
	if len(result) < 2 {
		return nil, nil
	}
	var job model.Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, &InvalidPayloadError{Raw: []byte(result[1]), Err: err}
	}
	return &job, nil
}

// HealthCheck verifies the queue's Redis connection is reachable.
func (q *Queue) HealthCheck(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis client so callers can register it
// with observability.HealthChecker.WithQueueRedis.
func (q *Queue) Client() *redis.Client {
	return q.client
}
