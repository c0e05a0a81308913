// Package postgres implements pkg/ingest/store.Writer backed by
// PostgreSQL, using a BeginTx/loop ExecContext/Commit/deferred-Rollback
// transaction pattern so a batch insert either lands whole or not at all.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/schemajson"
	"github.com/platinummonkey/chrysalis/pkg/ingest/store"
)

var tracer = otel.Tracer("chrysalis/ingest/store/postgres")

// Writer is the PostgreSQL-backed durable document writer.
type Writer struct {
	db *sql.DB
}

var _ store.Writer = (*Writer)(nil)

// New opens a connection to url and verifies connectivity.
func New(url string) (*Writer, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}
	return &Writer{db: db}, nil
}

// NewWithDB wraps an already-open *sql.DB, letting tests inject a
// sqlmock-backed connection.
func NewWithDB(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// Close releases the underlying connection pool.
func (w *Writer) Close() error {
	return w.db.Close()
}

// InsertMany implements store.Writer: all documents in one batch are
// written inside a single transaction, one prepared INSERT per document,
// so a failure partway through leaves none of the batch written.
func (w *Writer) InsertMany(ctx context.Context, docs []model.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	ctx, span := tracer.Start(ctx, "InsertMany",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.table", "ingested_documents"),
			attribute.Int("chrysalis.doc_count", len(docs)),
		),
	)
	defer span.End()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("store/postgres: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ingested_documents (payload) VALUES ($1)`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("store/postgres: prepare: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		payload, err := schemajson.MarshalDocument(doc)
		if err != nil {
			return 0, fmt.Errorf("store/postgres: marshal document: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, fmt.Errorf("store/postgres: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("store/postgres: commit: %w", err)
	}

	return len(docs), nil
}

// HealthCheck implements store.Writer.
func (w *Writer) HealthCheck(ctx context.Context) error {
	return w.db.PingContext(ctx)
}
