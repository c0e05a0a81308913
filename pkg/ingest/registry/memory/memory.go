// Package memory implements an in-process pkg/ingest/registry.Registry
// backed by a mutex-guarded slice, used by unit tests and the "memory"
// deployment profile.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/registry"
)

// Registry is an in-memory schema registry. The zero value is ready to use.
type Registry struct {
	mu       sync.Mutex
	versions []*model.SchemaRecord // append-only, ordered by Version ascending
}

// New returns an empty in-memory registry.
func New() *Registry {
	return &Registry{}
}

var _ registry.Registry = (*Registry)(nil)

// GetLatest implements registry.Registry.
func (r *Registry) GetLatest(ctx context.Context) (*model.SchemaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.versions) == 0 {
		return nil, nil
	}
	copyRecord := *r.versions[len(r.versions)-1]
	return &copyRecord, nil
}

// CreateNewVersion implements registry.Registry. The in-process mutex is
// sufficient to resolve the version-allocation race for this single
// backend; the postgres implementation resolves the same race at the SQL
// layer since multiple processes do not share this mutex.
func (r *Registry) CreateNewVersion(ctx context.Context, schema model.Schema, diff model.Diff, sourceJobID string, sampleDocs []model.Document, fieldStats map[string]model.FieldStats) (*model.SchemaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := 1
	if len(r.versions) > 0 {
		next = r.versions[len(r.versions)-1].Version + 1
	}

	if len(sampleDocs) > model.MaxSampleDocs {
		sampleDocs = sampleDocs[:model.MaxSampleDocs]
	}

	rec := &model.SchemaRecord{
		Version:     next,
		Schema:      schema,
		Diff:        diff,
		CreatedAt:   time.Now(),
		SourceJobID: sourceJobID,
		SampleDocs:  sampleDocs,
		FieldStats:  fieldStats,
	}
	r.versions = append(r.versions, rec)

	out := *rec
	return &out, nil
}

// GetByVersion implements registry.Registry.
func (r *Registry) GetByVersion(ctx context.Context, version int) (*model.SchemaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.versions {
		if rec.Version == version {
			out := *rec
			return &out, nil
		}
	}
	return nil, nil
}

// MarkPromoted implements registry.Registry, setting PendingPromotion on the
// approved record per the approval endpoint's contract.
func (r *Registry) MarkPromoted(ctx context.Context, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.versions {
		if rec.Version == version {
			now := time.Now()
			rec.PendingPromotion = true
			rec.PromotedAt = &now
			return nil
		}
	}
	return nil
}

// Equal implements registry.Registry.
func (r *Registry) Equal(a, b model.Schema) bool {
	return registry.CanonicalEqual(a, b)
}

// HealthCheck implements registry.Registry; always healthy in-process.
func (r *Registry) HealthCheck(ctx context.Context) error {
	return nil
}
