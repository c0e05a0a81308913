// Package memory implements an in-process pkg/ingest/dlq.Sink backed by a
// slice, used by unit tests and as cmd/chrysalis-worker's default DLQ
// backend when no Redis DLQ is configured. The CLI's dlq subcommands work
// only against the Redis sink.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/chrysalis/pkg/ingest/dlq"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Sink is an in-memory dead-letter sink. The zero value is ready to use.
type Sink struct {
	mu      sync.Mutex
	entries []dlq.Envelope
}

// New returns an empty in-memory sink.
func New() *Sink {
	return &Sink{}
}

var _ dlq.Sink = (*Sink)(nil)

// Send implements dlq.Sink.
func (s *Sink) Send(ctx context.Context, payload model.Document, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, dlq.Envelope{
		Payload:   payload,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// HealthCheck implements dlq.Sink; always healthy in-process.
func (s *Sink) HealthCheck(ctx context.Context) error {
	return nil
}

// Entries returns a snapshot of everything sent so far, for test
// assertions.
func (s *Sink) Entries() []dlq.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dlq.Envelope, len(s.entries))
	copy(out, s.entries)
	return out
}

// Requeue removes and returns the entry at index i, reporting false when i
// is out of range.
func (s *Sink) Requeue(i int) (dlq.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.entries) {
		return dlq.Envelope{}, false
	}
	e := s.entries[i]
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return e, true
}
