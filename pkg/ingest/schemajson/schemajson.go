// Package schemajson provides the JSON wire encodings used to persist
// ingest pipeline values (schemas, diffs, documents, field stats) in
// PostgreSQL jsonb columns.
package schemajson

import (
	"encoding/json"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

type typesWire []string

// UnmarshalJSON accepts a single type name or an array of them, the two
// shapes model.Types.MarshalJSON (and so Schema.Canonical) writes.
func (w *typesWire) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*w = typesWire{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*w = many
	return nil
}

func typesToWire(t model.Types) typesWire {
	return typesWire(t.Sorted())
}

func wireToTypes(w typesWire) model.Types {
	tags := make([]model.TypeTag, 0, len(w))
	for _, s := range w {
		tags = append(tags, model.TypeTag(s))
	}
	return model.NewTypes(tags...)
}

type addedWire struct {
	Type       typesWire `json:"type"`
	Present    int       `json:"present"`
	PresentPct float64   `json:"present_pct"`
}

type removedWire struct {
	Type           typesWire `json:"type"`
	PrevPresentPct float64   `json:"prev_present_pct"`
}

type changedWire struct {
	OldType   typesWire `json:"old_type"`
	NewType   typesWire `json:"new_type"`
	NewDomPct float64   `json:"new_dom_pct"`
}

type diffWire struct {
	Added   map[string]addedWire   `json:"added"`
	Removed map[string]removedWire `json:"removed"`
	Changed map[string]changedWire `json:"changed"`
}

// MarshalDiff encodes a Diff for persistence.
func MarshalDiff(d model.Diff) ([]byte, error) {
	w := diffWire{
		Added:   make(map[string]addedWire, len(d.Added)),
		Removed: make(map[string]removedWire, len(d.Removed)),
		Changed: make(map[string]changedWire, len(d.Changed)),
	}
	for k, v := range d.Added {
		w.Added[k] = addedWire{Type: typesToWire(v.Type), Present: v.Present, PresentPct: v.PresentPct}
	}
	for k, v := range d.Removed {
		w.Removed[k] = removedWire{Type: typesToWire(v.Type), PrevPresentPct: v.PrevPresentPct}
	}
	for k, v := range d.Changed {
		w.Changed[k] = changedWire{OldType: typesToWire(v.OldType), NewType: typesToWire(v.NewType), NewDomPct: v.NewDomPct}
	}
	return json.Marshal(w)
}

// UnmarshalDiff decodes a Diff previously written by MarshalDiff. An empty
// or nil input decodes to a zero-value Diff.
func UnmarshalDiff(data []byte) (model.Diff, error) {
	if len(data) == 0 {
		return model.Diff{}, nil
	}
	var w diffWire
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Diff{}, err
	}
	d := model.Diff{
		Added:   make(map[string]model.AddedEntry, len(w.Added)),
		Removed: make(map[string]model.RemovedEntry, len(w.Removed)),
		Changed: make(map[string]model.ChangedEntry, len(w.Changed)),
	}
	for k, v := range w.Added {
		d.Added[k] = model.AddedEntry{Type: wireToTypes(v.Type), Present: v.Present, PresentPct: v.PresentPct}
	}
	for k, v := range w.Removed {
		d.Removed[k] = model.RemovedEntry{Type: wireToTypes(v.Type), PrevPresentPct: v.PrevPresentPct}
	}
	for k, v := range w.Changed {
		d.Changed[k] = model.ChangedEntry{OldType: wireToTypes(v.OldType), NewType: wireToTypes(v.NewType), NewDomPct: v.NewDomPct}
	}
	return d, nil
}

type propertyWire struct {
	Type typesWire `json:"type"`
}

type schemaWire struct {
	Properties map[string]propertyWire `json:"properties"`
	Required   []string                `json:"required"`
}

// MarshalSchema encodes a Schema for round-tripping through storage
// (distinct from Schema.Canonical, which is the deterministic-ordering
// encoding used for equality and hashing).
func MarshalSchema(s model.Schema) ([]byte, error) {
	w := schemaWire{Properties: make(map[string]propertyWire, len(s.Properties)), Required: s.RequiredSorted()}
	for k, v := range s.Properties {
		w.Properties[k] = propertyWire{Type: typesToWire(v.Type)}
	}
	return json.Marshal(w)
}

// UnmarshalSchema decodes a Schema previously written by MarshalSchema or
// Schema.Canonical.
func UnmarshalSchema(data []byte) (model.Schema, error) {
	var w schemaWire
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Schema{}, err
	}
	s := model.Schema{Properties: make(map[string]model.PropertyDef, len(w.Properties)), Required: w.Required}
	for k, v := range w.Properties {
		s.Properties[k] = model.PropertyDef{Type: wireToTypes(v.Type)}
	}
	return s, nil
}

// UnmarshalSchemaAndDiff decodes a (schema, diff) pair in one call, the
// common shape needed when scanning a schema_registry row.
func UnmarshalSchemaAndDiff(schemaJSON, diffJSON []byte) (model.Schema, model.Diff, error) {
	schema, err := UnmarshalSchema(schemaJSON)
	if err != nil {
		return model.Schema{}, model.Diff{}, err
	}
	diff, err := UnmarshalDiff(diffJSON)
	if err != nil {
		return model.Schema{}, model.Diff{}, err
	}
	return schema, diff, nil
}

// MarshalDocument encodes a single document as a JSON object.
func MarshalDocument(doc model.Document) ([]byte, error) {
	return json.Marshal(doc)
}

// MarshalDocuments encodes a document slice as a JSON array.
func MarshalDocuments(docs []model.Document) ([]byte, error) {
	if docs == nil {
		docs = []model.Document{}
	}
	return json.Marshal(docs)
}

// UnmarshalDocuments decodes a document slice. An empty or nil input
// decodes to an empty (non-nil) slice.
func UnmarshalDocuments(data []byte) ([]model.Document, error) {
	if len(data) == 0 {
		return []model.Document{}, nil
	}
	var docs []model.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

type fieldStatsWire struct {
	Present    int                   `json:"present"`
	SampleSize int                   `json:"sample_size"`
	TypeCounts map[model.TypeTag]int `json:"type_counts"`
}

// MarshalFieldStats encodes a per-field statistics map.
func MarshalFieldStats(stats map[string]model.FieldStats) ([]byte, error) {
	w := make(map[string]fieldStatsWire, len(stats))
	for k, v := range stats {
		w[k] = fieldStatsWire{Present: v.Present, SampleSize: v.SampleSize, TypeCounts: v.TypeCounts}
	}
	return json.Marshal(w)
}

// UnmarshalFieldStats decodes a per-field statistics map. An empty or nil
// input decodes to an empty (non-nil) map.
func UnmarshalFieldStats(data []byte) (map[string]model.FieldStats, error) {
	if len(data) == 0 {
		return map[string]model.FieldStats{}, nil
	}
	var w map[string]fieldStatsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	out := make(map[string]model.FieldStats, len(w))
	for k, v := range w {
		out[k] = model.FieldStats{Present: v.Present, SampleSize: v.SampleSize, TypeCounts: v.TypeCounts}
	}
	return out, nil
}
