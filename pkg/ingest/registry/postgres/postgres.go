// Package postgres implements pkg/ingest/registry.Registry backed by
// PostgreSQL: context-aware methods, a package-level OTel tracer, and
// transactional writes guarding the version-allocation race.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/registry"
	"github.com/platinummonkey/chrysalis/pkg/ingest/schemajson"
)

var tracer = otel.Tracer("chrysalis/ingest/registry/postgres")

// Config configures the postgres-backed registry.
type Config struct {
	URL          string
	MaxConns     int
	MinConns     int
	Timeout      time.Duration
	EqualityCacheSize int
}

// DefaultConfig returns sane connection pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		Timeout:           5 * time.Second,
		EqualityCacheSize: 256,
	}
}

// Registry is the PostgreSQL-backed schema registry.
type Registry struct {
	db          *sql.DB
	config      Config
	equalCache  *lru.Cache[string, bool]
}

var _ registry.Registry = (*Registry)(nil)

// New opens a connection pool and verifies connectivity.
func New(cfg Config) (*Registry, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("registry/postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry/postgres: ping: %w", err)
	}

	reg, err := NewWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return reg, nil
}

// NewWithDB wraps an already-open *sql.DB, letting tests inject a
// sqlmock-backed connection without dialing a real database.
func NewWithDB(db *sql.DB, cfg Config) (*Registry, error) {
	cacheSize := cfg.EqualityCacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("registry/postgres: equality cache: %w", err)
	}
	return &Registry{db: db, config: cfg, equalCache: cache}, nil
}

// Close releases the underlying connection pool.
func (r *Registry) Close() error {
	return r.db.Close()
}

// GetLatest implements registry.Registry.
func (r *Registry) GetLatest(ctx context.Context) (*model.SchemaRecord, error) {
	ctx, span := tracer.Start(ctx, "GetLatest",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.table", "schema_registry"),
		),
	)
	defer span.End()

	row := r.db.QueryRowContext(ctx, `
		SELECT version, schema_json, diff_json, created_at, source_job_id,
		       sample_docs_json, field_stats_json, pending_promotion, promoted_at
		FROM schema_registry
		ORDER BY version DESC
		LIMIT 1`)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("registry/postgres: GetLatest: %w", err)
	}
	return rec, nil
}

// GetByVersion implements registry.Registry.
func (r *Registry) GetByVersion(ctx context.Context, version int) (*model.SchemaRecord, error) {
	ctx, span := tracer.Start(ctx, "GetByVersion",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.table", "schema_registry"),
			attribute.Int("chrysalis.version", version),
		),
	)
	defer span.End()

	row := r.db.QueryRowContext(ctx, `
		SELECT version, schema_json, diff_json, created_at, source_job_id,
		       sample_docs_json, field_stats_json, pending_promotion, promoted_at
		FROM schema_registry
		WHERE version = $1`, version)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("registry/postgres: GetByVersion: %w", err)
	}
	return rec, nil
}

// CreateNewVersion implements registry.Registry. The version number is
// allocated inside the same transaction as the insert, via
// COALESCE(MAX(version),0)+1, so concurrent workers racing to create a
// version never observe a duplicate or skipped number: the losing
// transaction's insert fails the unique index on version and is retried
// with a freshly recomputed number, up to three attempts in all.
func (r *Registry) CreateNewVersion(ctx context.Context, schema model.Schema, diff model.Diff, sourceJobID string, sampleDocs []model.Document, fieldStats map[string]model.FieldStats) (*model.SchemaRecord, error) {
	ctx, span := tracer.Start(ctx, "CreateNewVersion",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.table", "schema_registry"),
		),
	)
	defer span.End()

	if len(sampleDocs) > model.MaxSampleDocs {
		sampleDocs = sampleDocs[:model.MaxSampleDocs]
	}

	schemaJSON, err := schema.Canonical()
	if err != nil {
		return nil, fmt.Errorf("registry/postgres: marshal schema: %w", err)
	}
	diffJSON, err := schemajson.MarshalDiff(diff)
	if err != nil {
		return nil, fmt.Errorf("registry/postgres: marshal diff: %w", err)
	}
	sampleJSON, err := schemajson.MarshalDocuments(sampleDocs)
	if err != nil {
		return nil, fmt.Errorf("registry/postgres: marshal sample docs: %w", err)
	}
	statsJSON, err := schemajson.MarshalFieldStats(fieldStats)
	if err != nil {
		return nil, fmt.Errorf("registry/postgres: marshal field stats: %w", err)
	}

	const maxAttempts = 3
	var rec *model.SchemaRecord
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rec, err = r.tryInsert(ctx, schemaJSON, diffJSON, sourceJobID, sampleJSON, statsJSON)
		if err == nil {
			return rec, nil
		}
		if !isUniqueViolation(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("registry/postgres: CreateNewVersion: %w", err)
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "exhausted retries on version allocation race")
	return nil, fmt.Errorf("registry/postgres: CreateNewVersion: exhausted retries: %w", err)
}

func (r *Registry) tryInsert(ctx context.Context, schemaJSON, diffJSON []byte, sourceJobID string, sampleJSON, statsJSON []byte) (*model.SchemaRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO schema_registry
			(version, schema_json, diff_json, created_at, source_job_id, sample_docs_json, field_stats_json, pending_promotion)
		SELECT COALESCE(MAX(version), 0) + 1, $1, $2, $3, $4, $5, $6, false
		FROM schema_registry
		RETURNING version, created_at`,
		schemaJSON, diffJSON, time.Now(), sourceJobID, sampleJSON, statsJSON)

	var version int
	var createdAt time.Time
	if err := row.Scan(&version, &createdAt); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	schema, diff, err := schemajson.UnmarshalSchemaAndDiff(schemaJSON, diffJSON)
	if err != nil {
		return nil, err
	}
	sampleDocs, err := schemajson.UnmarshalDocuments(sampleJSON)
	if err != nil {
		return nil, err
	}
	fieldStats, err := schemajson.UnmarshalFieldStats(statsJSON)
	if err != nil {
		return nil, err
	}

	return &model.SchemaRecord{
		Version:     version,
		Schema:      schema,
		Diff:        diff,
		CreatedAt:   createdAt,
		SourceJobID: sourceJobID,
		SampleDocs:  sampleDocs,
		FieldStats:  fieldStats,
	}, nil
}

// MarkPromoted implements registry.Registry, setting pending_promotion on
// the approved record per the approval endpoint's contract.
func (r *Registry) MarkPromoted(ctx context.Context, version int) error {
	ctx, span := tracer.Start(ctx, "MarkPromoted",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "UPDATE"),
			attribute.String("db.table", "schema_registry"),
			attribute.Int("chrysalis.version", version),
		),
	)
	defer span.End()

	_, err := r.db.ExecContext(ctx, `
		UPDATE schema_registry
		SET pending_promotion = true, promoted_at = $2
		WHERE version = $1`, version, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("registry/postgres: MarkPromoted: %w", err)
	}
	return nil
}

// Equal implements registry.Registry, memoizing results in an LRU cache
// keyed by the two canonical encodings. Both schemas are still
// canonicalized on every call; a cache hit skips only the byte comparison.
func (r *Registry) Equal(a, b model.Schema) bool {
	ab, errA := a.Canonical()
	bb, errB := b.Canonical()
	if errA != nil || errB != nil {
		return registry.CanonicalEqual(a, b)
	}
	key := string(ab) + "\x00" + string(bb)
	if v, ok := r.equalCache.Get(key); ok {
		return v
	}
	eq := string(ab) == string(bb)
	r.equalCache.Add(key, eq)
	return eq
}

// HealthCheck implements registry.Registry.
func (r *Registry) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.SchemaRecord, error) {
	var (
		version       int
		schemaJSON    []byte
		diffJSON      []byte
		createdAt     time.Time
		sourceJobID   string
		sampleJSON    []byte
		statsJSON     []byte
		pending       bool
		promotedAt    sql.NullTime
	)
	if err := row.Scan(&version, &schemaJSON, &diffJSON, &createdAt, &sourceJobID, &sampleJSON, &statsJSON, &pending, &promotedAt); err != nil {
		return nil, err
	}

	schema, diff, err := schemajson.UnmarshalSchemaAndDiff(schemaJSON, diffJSON)
	if err != nil {
		return nil, err
	}
	sampleDocs, err := schemajson.UnmarshalDocuments(sampleJSON)
	if err != nil {
		return nil, err
	}
	fieldStats, err := schemajson.UnmarshalFieldStats(statsJSON)
	if err != nil {
		return nil, err
	}

	rec := &model.SchemaRecord{
		Version:          version,
		Schema:           schema,
		Diff:             diff,
		CreatedAt:        createdAt,
		SourceJobID:      sourceJobID,
		SampleDocs:       sampleDocs,
		FieldStats:       fieldStats,
		PendingPromotion: pending,
	}
	if promotedAt.Valid {
		t := promotedAt.Time
		rec.PromotedAt = &t
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	// lib/pq reports unique violations as *pq.Error with Code "23505"; the
	// driver type is intentionally not imported here to keep this check
	// usable from sqlmock-driven tests that never construct a real
	// *pq.Error. A substring check on the wrapped message is sufficient for
	// the narrow purpose of the version-allocation retry loop.
	return err != nil && containsUniqueViolationHint(err.Error())
}

func containsUniqueViolationHint(msg string) bool {
	for _, hint := range []string{"23505", "duplicate key value violates unique constraint"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
