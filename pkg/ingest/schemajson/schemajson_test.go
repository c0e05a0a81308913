package schemajson

import (
	"testing"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/stretchr/testify/require"
)

func TestMarshalDiff_RoundTripsPresentAndNewDomPct(t *testing.T) {
	d := model.Diff{
		Added: map[string]model.AddedEntry{
			"new_field": {Type: model.NewTypes(model.TypeInteger), Present: 15, PresentPct: 15.0 / 22.0},
		},
		Removed: map[string]model.RemovedEntry{
			"legacy": {Type: model.NewTypes(model.TypeString), PrevPresentPct: 0.9},
		},
		Changed: map[string]model.ChangedEntry{
			"value": {
				OldType:   model.NewTypes(model.TypeInteger),
				NewType:   model.NewTypes(model.TypeString),
				NewDomPct: 0.8,
			},
		},
	}

	data, err := MarshalDiff(d)
	require.NoError(t, err)

	got, err := UnmarshalDiff(data)
	require.NoError(t, err)

	require.Equal(t, 15, got.Added["new_field"].Present)
	require.InDelta(t, 15.0/22.0, got.Added["new_field"].PresentPct, 1e-9)
	require.InDelta(t, 0.8, got.Changed["value"].NewDomPct, 1e-9)
	require.InDelta(t, 0.9, got.Removed["legacy"].PrevPresentPct, 1e-9)
}

func TestUnmarshalDiff_EmptyInput(t *testing.T) {
	d, err := UnmarshalDiff(nil)
	require.NoError(t, err)
	require.Empty(t, d.Added)
	require.Empty(t, d.Removed)
	require.Empty(t, d.Changed)
}
