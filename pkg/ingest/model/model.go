// Package model holds the data types shared across the ingest pipeline:
// documents, schemas, diffs, and the promotion decisions derived from them.
package model

import (
	"sort"
	"time"
)

// TypeTag is the structural classification of a JSON-like value.
type TypeTag string

const (
	TypeNull    TypeTag = "null"
	TypeBoolean TypeTag = "boolean"
	TypeInteger TypeTag = "integer"
	TypeNumber  TypeTag = "number"
	TypeString  TypeTag = "string"
	TypeObject  TypeTag = "object"
	TypeArray   TypeTag = "array"
	TypeUnknown TypeTag = "unknown"
)

// Document is a single ingested record. Key order is not preserved; callers
// that need canonical ordering must sort keys themselves (see Schema).
type Document map[string]any

// FieldStats accumulates presence and type-shape statistics for one field
// across a sample of documents.
type FieldStats struct {
	Present    int
	SampleSize int
	TypeCounts map[TypeTag]int
}

// PresentPct returns the fraction of sampled documents in which the field
// was present. Returns 0 when SampleSize is 0.
func (f FieldStats) PresentPct() float64 {
	if f.SampleSize == 0 {
		return 0
	}
	return float64(f.Present) / float64(f.SampleSize)
}

// DominantType returns the most frequently observed type tag, breaking ties
// lexicographically on the tag name.
func (f FieldStats) DominantType() (TypeTag, bool) {
	if len(f.TypeCounts) == 0 {
		return "", false
	}
	tags := make([]string, 0, len(f.TypeCounts))
	for t := range f.TypeCounts {
		tags = append(tags, string(t))
	}
	sort.Strings(tags)

	best := TypeTag(tags[0])
	bestCount := f.TypeCounts[best]
	for _, t := range tags[1:] {
		tag := TypeTag(t)
		if c := f.TypeCounts[tag]; c > bestCount {
			best, bestCount = tag, c
		}
	}
	return best, true
}

// Types is a set of type tags a field may take, e.g. {"string"} or
// {"integer", "null"}. Marshaled as a single string when len == 1, or a
// sorted array otherwise, mirroring JSON-Schema's "type" keyword.
type Types map[TypeTag]struct{}

// NewTypes builds a Types set from the given tags.
func NewTypes(tags ...TypeTag) Types {
	t := make(Types, len(tags))
	for _, tag := range tags {
		t[tag] = struct{}{}
	}
	return t
}

// Has reports whether tag is a member of the set.
func (t Types) Has(tag TypeTag) bool {
	_, ok := t[tag]
	return ok
}

// Sorted returns the set's members in lexicographic order.
func (t Types) Sorted() []string {
	out := make([]string, 0, len(t))
	for tag := range t {
		out = append(out, string(tag))
	}
	sort.Strings(out)
	return out
}

// PropertyDef is the inferred shape of a single object field.
type PropertyDef struct {
	Type Types
}

// Schema is the structural description of a document shape: the set of
// known properties and which of them are required. Properties are always
// iterated and rendered in lexicographic key order for determinism.
type Schema struct {
	Properties map[string]PropertyDef
	Required   []string
}

// PropertyKeys returns the schema's property names in lexicographic order.
func (s Schema) PropertyKeys() []string {
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RequiredSorted returns a sorted copy of Required.
func (s Schema) RequiredSorted() []string {
	out := append([]string(nil), s.Required...)
	sort.Strings(out)
	return out
}

// AddedEntry describes a field present in the new schema but absent from the
// old one. Present carries the raw sample count behind PresentPct so
// promotion decisions right at a threshold boundary don't have to
// reconstruct it by multiplying a rounded fraction back out.
type AddedEntry struct {
	Type       Types
	Present    int
	PresentPct float64
}

// RemovedEntry describes a field present in the old schema but absent from
// the new one.
type RemovedEntry struct {
	Type           Types
	PrevPresentPct float64
}

// ChangedEntry describes a field present in both schemas whose type set
// differs. NewDomPct is the new dominant type's share of that field's type
// observations in the candidate sample, the value that justifies a type_shift promotion — kept
// on the entry so a persisted SchemaRecord.Diff can be replayed without
// recomputing it from field stats that may no longer be retained.
type ChangedEntry struct {
	OldType   Types
	NewType   Types
	NewDomPct float64
}

// Diff is the structural delta between a prior schema and a candidate one.
type Diff struct {
	Added   map[string]AddedEntry
	Removed map[string]RemovedEntry
	Changed map[string]ChangedEntry
}

// IsEmpty reports whether the diff carries no structural change.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Decision is the outcome of a promotion policy evaluation.
type Decision struct {
	Promote bool
	Reasons []string
}

// SchemaRecord is a persisted, versioned schema snapshot.
type SchemaRecord struct {
	Version          int
	Schema           Schema
	Diff             Diff
	CreatedAt        time.Time
	SourceJobID      string
	SampleDocs       []Document
	FieldStats       map[string]FieldStats
	PendingPromotion bool
	PromotedAt       *time.Time
}

// Job is one unit of ingest work: a batch of documents popped from the
// ingest queue together.
type Job struct {
	JobID      string     `json:"job_id"`
	Source     string     `json:"source"`
	ReceivedAt time.Time  `json:"received_at"`
	Documents  []Document `json:"documents"`
}

// MaxSampleDocs bounds how many documents from a job are retained on a
// SchemaRecord for forensic inspection.
const MaxSampleDocs = 5
