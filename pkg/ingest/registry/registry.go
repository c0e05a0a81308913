// Package registry defines the schema registry (C3): the store of record
// for promoted schema versions.
package registry

import (
	"context"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Registry is the canonical interface for reading and writing schema
// versions, implemented by pkg/ingest/registry/memory and
// pkg/ingest/registry/postgres.
type Registry interface {
	// GetLatest returns the most recently created SchemaRecord, or
	// (nil, nil) if the registry is empty.
	GetLatest(ctx context.Context) (*model.SchemaRecord, error)

	// CreateNewVersion atomically allocates the next version number and
	// persists a new SchemaRecord. Concurrent callers racing to create a
	// version must never observe duplicate or skipped version numbers.
	CreateNewVersion(ctx context.Context, schema model.Schema, diff model.Diff, sourceJobID string, sampleDocs []model.Document, fieldStats map[string]model.FieldStats) (*model.SchemaRecord, error)

	// GetByVersion looks a specific version up, used by the manual
	// promotion endpoint. Returns (nil, nil) if not found.
	GetByVersion(ctx context.Context, version int) (*model.SchemaRecord, error)

	// MarkPromoted sets PendingPromotion on the given version and stamps
	// PromotedAt, mirroring the manual approval endpoint's contract.
	MarkPromoted(ctx context.Context, version int) error

	// Equal reports whether two schemas are structurally identical once
	// canonicalized (lexicographic properties, sorted type sets, sorted
	// required list).
	Equal(a, b model.Schema) bool

	// HealthCheck verifies the registry's backing store is reachable.
	HealthCheck(ctx context.Context) error
}
