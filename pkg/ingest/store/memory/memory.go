// Package memory implements an in-process pkg/ingest/store.Writer backed by
// an append-only slice, used by unit tests and the "memory" deployment
// profile.
package memory

import (
	"context"
	"sync"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/store"
)

// Writer is an in-memory document store. The zero value is ready to use.
type Writer struct {
	mu   sync.Mutex
	docs []model.Document
}

// New returns an empty in-memory writer.
func New() *Writer {
	return &Writer{}
}

var _ store.Writer = (*Writer)(nil)

// InsertMany implements store.Writer.
func (w *Writer) InsertMany(ctx context.Context, docs []model.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs = append(w.docs, docs...)
	return len(docs), nil
}

// HealthCheck implements store.Writer; always healthy in-process.
func (w *Writer) HealthCheck(ctx context.Context) error {
	return nil
}

// Documents returns a snapshot of everything written so far, for test
// assertions.
func (w *Writer) Documents() []model.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Document, len(w.docs))
	copy(out, w.docs)
	return out
}
