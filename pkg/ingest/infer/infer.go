// Package infer implements the sample inferencer (C2): it walks a batch of
// documents once, accumulating per-field presence and type-shape statistics,
// and derives a candidate Schema from them.
package infer

import (
	"github.com/platinummonkey/chrysalis/pkg/ingest/classify"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Infer walks sample and returns the candidate schema together with the
// raw per-field statistics the schema was derived from. A field is marked
// Required when it was present in every document of the sample. Top-level
// fields only are inspected; nested object/array structure is tagged but
// not recursed into, matching the source inferencer's shallow walk.
func Infer(sample []model.Document) (model.Schema, map[string]model.FieldStats) {
	stats := make(map[string]model.FieldStats)

	for _, doc := range sample {
		for field, value := range doc {
			fs := stats[field]
			fs.SampleSize = len(sample)
			fs.Present++
			if fs.TypeCounts == nil {
				fs.TypeCounts = make(map[model.TypeTag]int)
			}
			fs.TypeCounts[classify.Classify(value)]++
			stats[field] = fs
		}
	}
	// SampleSize is the same for every field (denominator is the batch
	// size, not the per-field observation count), so backfill it even for
	// fields touched zero times is unnecessary: only observed fields ever
	// appear in stats.
	for field, fs := range stats {
		fs.SampleSize = len(sample)
		stats[field] = fs
	}

	schema := model.Schema{Properties: make(map[string]model.PropertyDef)}
	for field, fs := range stats {
		types := make(model.Types, len(fs.TypeCounts))
		for tag := range fs.TypeCounts {
			types[tag] = struct{}{}
		}
		schema.Properties[field] = model.PropertyDef{Type: types}
		if fs.Present == len(sample) && len(sample) > 0 {
			schema.Required = append(schema.Required, field)
		}
	}

	return schema, stats
}
