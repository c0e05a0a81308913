package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/chrysalis/pkg/ingest/diff"
	"github.com/platinummonkey/chrysalis/pkg/ingest/dlq"
	"github.com/platinummonkey/chrysalis/pkg/ingest/infer"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/promotion"
	"github.com/platinummonkey/chrysalis/pkg/ingest/queue"
	"github.com/platinummonkey/chrysalis/pkg/ingest/registry"
	"github.com/platinummonkey/chrysalis/pkg/ingest/store"
	"github.com/platinummonkey/chrysalis/pkg/ingest/validate"
	"github.com/platinummonkey/chrysalis/pkg/observability"
)

// queueErrorBackoff is the courtesy sleep after a hard queue read failure
// (e.g. a dropped connection) before the next poll attempt.
const queueErrorBackoff = time.Second

// popTimeoutBackoff is the courtesy sleep after Pop returns with no job
// available, avoiding a busy-spin against an empty queue.
const popTimeoutBackoff = 100 * time.Millisecond

var tracer = otel.Tracer("chrysalis/ingest/worker")

// GoverningSchema selects which schema documents are validated against.
type GoverningSchema int

const (
	GoverningLatest GoverningSchema = iota
	GoverningCandidate
)

// SampleSize bounds how many documents from a job are sampled for
// structural inference, mirroring the source worker's "sample = docs[:200]".
const SampleSize = 200

// State is the coordinator's current lifecycle state, surfaced for health
// reporting and tests.
type State int

const (
	StateIdle State = iota
	StatePopping
	StateProcessing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePopping:
		return "popping"
	case StateProcessing:
		return "processing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Queue is the minimal job source the coordinator needs.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*model.Job, error)
}

// Config configures a Coordinator.
type Config struct {
	BLPopTimeout       time.Duration
	GoverningSchema    GoverningSchema
	ValidatorConfig    validate.Config
	PromotionThresholds promotion.Thresholds
	PromotionPolicyKind promotion.Kind
}

// DefaultConfig mirrors spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		BLPopTimeout:        5 * time.Second,
		GoverningSchema:     GoverningLatest,
		ValidatorConfig:     validate.DefaultConfig(),
		PromotionThresholds: promotion.DefaultThresholds(),
		PromotionPolicyKind: promotion.KindDriftRule,
	}
}

// Deps carries the coordinator's external collaborators.
type Deps struct {
	Queue    Queue
	Registry registry.Registry
	Writer   store.Writer
	DLQ      dlq.Sink
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Coordinator implements the job coordinator (C9): IDLE -> POPPING ->
// PROCESSING -> IDLE, STOPPING on cancellation.
type Coordinator struct {
	cfg    Config
	deps   Deps
	policy atomic.Value // promotion.Policy

	state State
}

// New constructs a Coordinator, resolving the configured promotion policy.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	policy, err := promotion.NewPolicy(cfg.PromotionPolicyKind, cfg.PromotionThresholds)
	if err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	c := &Coordinator{cfg: cfg, deps: deps, state: StateIdle}
	c.policy.Store(policy)
	return c, nil
}

// UpdateThresholds rebuilds the coordinator's promotion policy with new
// thresholds, swapped in atomically so it is safe to call from a config
// file watcher goroutine while the main loop is mid-job.
func (c *Coordinator) UpdateThresholds(thresholds promotion.Thresholds) error {
	policy, err := promotion.NewPolicy(c.cfg.PromotionPolicyKind, thresholds)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	c.policy.Store(policy)
	return nil
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	return c.state
}

// Run drives the coordinator's main loop until ctx is canceled. A panic
// while processing a single job is recovered and logged so one bad job
// never takes the whole worker process down; the loop resumes at IDLE.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.state = StateStopping
			return ctx.Err()
		default:
		}

		c.state = StatePopping
		job, err := c.deps.Queue.Pop(ctx, c.cfg.BLPopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				c.state = StateStopping
				return ctx.Err()
			}

			var invalidPayload *queue.InvalidPayloadError
			if errors.As(err, &invalidPayload) {
				if c.deps.Logger != nil {
					c.deps.Logger.WithError(err).Error("worker: malformed job payload")
				}
				if c.deps.DLQ != nil {
					c.deps.DLQ.Send(ctx, model.Document{"raw": string(invalidPayload.Raw)}, "invalid_job_payload")
				}
				continue
			}

			if c.deps.Logger != nil {
				c.deps.Logger.WithError(err).Error("worker: queue pop failed")
			}
			if c.deps.Metrics != nil {
				c.deps.Metrics.IngestQueueErrorsTotal.Inc()
			}
			if !c.sleep(ctx, queueErrorBackoff) {
				c.state = StateStopping
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			c.state = StateIdle
			if !c.sleep(ctx, popTimeoutBackoff) {
				c.state = StateStopping
				return ctx.Err()
			}
			continue
		}

		c.state = StateProcessing
		c.processJobSafely(ctx, *job)
		c.state = StateIdle
	}
}

// sleep blocks for d or until ctx is canceled, reporting which happened
// first so Run can distinguish "backoff elapsed" from "told to stop".
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// processJobSafely wraps ProcessJob with a panic-recover boundary so one
// malformed job never takes the coordinator's goroutine down with it.
func (c *Coordinator) processJobSafely(ctx context.Context, job model.Job) {
	defer func() {
		if r := recover(); r != nil {
			if c.deps.Logger != nil {
				c.deps.Logger.WithField("panic", fmt.Sprintf("%v", r)).
					WithField("stack", string(debug.Stack())).
					Error("worker: recovered panic while processing job")
			}
			if c.deps.Metrics != nil {
				c.deps.Metrics.IngestJobPanicsTotal.Inc()
			}
		}
	}()
	c.ProcessJob(ctx, job)
}

// ProcessJob runs the full per-job pipeline: sample, infer, diff, decide,
// optionally promote, validate every document against the governing
// schema, and route each document to the durable store or the dead-letter
// sink.
func (c *Coordinator) ProcessJob(ctx context.Context, job model.Job) {
	ctx, span := tracer.Start(ctx, "worker.ProcessJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.JobID),
		attribute.Int("job.document_count", len(job.Documents)),
	)

	if c.deps.Metrics != nil {
		c.deps.Metrics.IngestJobsProcessedTotal.Inc()
	}

	if len(job.Documents) == 0 {
		if c.deps.DLQ != nil {
			c.deps.DLQ.Send(ctx, model.Document{"job_id": job.JobID}, "empty_documents")
		}
		return
	}

	sample := job.Documents
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}

	candidate, fieldStats := infer.Infer(sample)

	latest, err := c.deps.Registry.GetLatest(ctx)
	if err != nil {
		span.RecordError(err)
		if c.deps.Logger != nil {
			c.deps.Logger.WithError(err).Error("worker: registry GetLatest failed")
		}
		latest = nil
	}

	var oldSchema *model.Schema
	if latest != nil {
		s := latest.Schema
		oldSchema = &s
	}

	policy := c.policy.Load().(promotion.Policy)
	d := diff.Compute(oldSchema, candidate, fieldStats, latest)
	decision := policy.Decide(d, len(sample), fieldStats, latest)

	governing := candidate
	schemaVersion := 0
	if latest != nil {
		governing = latest.Schema
		schemaVersion = latest.Version
	}

	if decision.Promote {
		sampleDocs := sample
		if len(sampleDocs) > model.MaxSampleDocs {
			sampleDocs = sampleDocs[:model.MaxSampleDocs]
		}
		rec, err := c.deps.Registry.CreateNewVersion(ctx, candidate, d, job.JobID, sampleDocs, fieldStats)
		if err != nil {
			span.RecordError(err)
			if c.deps.Logger != nil {
				c.deps.Logger.WithError(err).Error("worker: registry CreateNewVersion failed")
			}
		} else {
			if c.deps.Metrics != nil {
				c.deps.Metrics.IngestPromotionsTotal.Inc()
			}
			schemaVersion = rec.Version
			if c.cfg.GoverningSchema == GoverningCandidate {
				governing = rec.Schema
			}
		}
	}
	if c.cfg.GoverningSchema == GoverningCandidate && !decision.Promote {
		governing = candidate
	}

	var ok []model.Document
	now := time.Now()
	for _, d := range job.Documents {
		valid, reason := validate.Validate(d, governing, fieldStats, c.cfg.ValidatorConfig)
		if !valid {
			if c.deps.Metrics != nil {
				c.deps.Metrics.IngestDocsRejectedTotal.Inc()
			}
			if c.deps.DLQ != nil {
				c.deps.DLQ.Send(ctx, d, reason)
			}
			continue
		}
		stamped := stampProvenance(d, job.JobID, schemaVersion, now)
		ok = append(ok, stamped)
	}

	if len(ok) > 0 && c.deps.Writer != nil {
		n, err := c.deps.Writer.InsertMany(ctx, ok)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "durable write failed")
			if c.deps.Logger != nil {
				c.deps.Logger.WithError(err).Error("worker: durable write failed")
			}
			if c.deps.DLQ != nil {
				for _, d := range ok {
					c.deps.DLQ.Send(ctx, d, "insert_failed")
				}
			}
			if c.deps.Metrics != nil {
				c.deps.Metrics.IngestDocsRejectedTotal.Add(float64(len(ok)))
			}
		} else if c.deps.Metrics != nil {
			c.deps.Metrics.IngestDocsAcceptedTotal.Add(float64(n))
		}
	}
}

// stampProvenance returns a shallow copy of doc with ingest provenance
// fields attached, never mutating the caller's original document.
func stampProvenance(doc model.Document, jobID string, schemaVersion int, at time.Time) model.Document {
	out := make(model.Document, len(doc)+4)
	for k, v := range doc {
		out[k] = v
	}
	out["_ingest_job_id"] = jobID
	out["_ingest_ts"] = at.Format(time.RFC3339Nano)
	out["_ingest_id"] = uuid.NewString()
	out["_schema_version"] = schemaVersion
	return out
}
