// Package store defines the durable writer (C7): where validated
// documents land once accepted.
package store

import (
	"context"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Writer persists accepted documents. InsertMany returns the number of
// documents written; an empty input returns (0, nil) without touching the
// backing store.
type Writer interface {
	InsertMany(ctx context.Context, docs []model.Document) (int, error)
	HealthCheck(ctx context.Context) error
}
