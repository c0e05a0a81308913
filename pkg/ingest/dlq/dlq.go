// Package dlq defines the dead-letter sink (C8): where documents land when
// they fail validation or otherwise cannot be durably written.
package dlq

import (
	"context"
	"time"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Envelope is the wire shape a dead-lettered document is wrapped in.
type Envelope struct {
	Payload   model.Document `json:"payload"`
	Reason    string         `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink delivers a document (plus the reason it was rejected) to the dead
// letter queue. Send never returns an error: delivery failures are logged
// and swallowed by the implementation, matching the at-least-once ingest
// pipeline's rule that a background sink must never take down the worker
// loop that called it.
type Sink interface {
	Send(ctx context.Context, payload model.Document, reason string)
	HealthCheck(ctx context.Context) error
}
