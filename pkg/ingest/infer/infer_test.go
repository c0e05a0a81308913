package infer

import (
	"testing"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/stretchr/testify/require"
)

func TestInfer_CanonicalSchemaIsPermutationInvariant(t *testing.T) {
	sample := []model.Document{
		{"id": 1, "name": "alice", "active": true},
		{"id": 2, "name": "bob", "active": false},
	}
	schema1, stats1 := Infer(sample)

	// Permute document key insertion order and field order; canonical JSON
	// must be byte-identical regardless.
	permuted := []model.Document{
		{"active": true, "id": 1, "name": "alice"},
		{"name": "bob", "active": false, "id": 2},
	}
	schema2, stats2 := Infer(permuted)

	b1, err := schema1.Canonical()
	require.NoError(t, err)
	b2, err := schema2.Canonical()
	require.NoError(t, err)
	require.Equal(t, string(b1), string(b2))

	require.Equal(t, stats1["id"].Present, stats2["id"].Present)
}

func TestInfer_RequiredWhenPresentInEveryDoc(t *testing.T) {
	sample := []model.Document{
		{"id": 1, "optional_field": "x"},
		{"id": 2},
	}
	schema, stats := Infer(sample)

	require.Contains(t, schema.RequiredSorted(), "id")
	require.NotContains(t, schema.RequiredSorted(), "optional_field")
	require.Equal(t, 2, stats["id"].Present)
	require.Equal(t, 1, stats["optional_field"].Present)
	require.Equal(t, 0.5, stats["optional_field"].PresentPct())
}

func TestInfer_EmptySample(t *testing.T) {
	schema, stats := Infer(nil)
	require.Empty(t, schema.Properties)
	require.Empty(t, stats)
}

func TestInfer_MixedTypesRecorded(t *testing.T) {
	sample := []model.Document{
		{"value": 1},
		{"value": "not-a-number"},
	}
	_, stats := Infer(sample)
	require.Len(t, stats["value"].TypeCounts, 2)
}
