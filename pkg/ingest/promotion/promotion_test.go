package promotion

import (
	"testing"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/stretchr/testify/require"
)

func TestNewPolicy_UnknownKind(t *testing.T) {
	_, err := NewPolicy("bogus", DefaultThresholds())
	require.Error(t, err)
}

func TestDriftRulePolicy_NoLatest(t *testing.T) {
	p := DriftRulePolicy{Thresholds: DefaultThresholds()}
	dec := p.Decide(model.Diff{}, 10, nil, nil)
	require.True(t, dec.Promote)
	require.Contains(t, dec.Reasons, "no_latest_schema")
}

func TestDriftRulePolicy_RemovedCommonFieldMajor(t *testing.T) {
	p := DriftRulePolicy{Thresholds: DefaultThresholds()}
	d := model.Diff{Removed: map[string]model.RemovedEntry{
		"legacy": {PrevPresentPct: 0.25},
	}}
	dec := p.Decide(d, 10, nil, &model.SchemaRecord{Version: 1})
	require.True(t, dec.Promote)
	require.Equal(t, []string{"removed_common_field:legacy"}, dec.Reasons)
}

func TestDriftRulePolicy_AddedCommonFieldMajor(t *testing.T) {
	p := DriftRulePolicy{Thresholds: DefaultThresholds()}
	d := model.Diff{Added: map[string]model.AddedEntry{
		"new_field": {PresentPct: 0.50},
	}}
	dec := p.Decide(d, 10, nil, &model.SchemaRecord{Version: 1})
	require.True(t, dec.Promote)
	require.Equal(t, []string{"added_common_field:new_field"}, dec.Reasons)
}

func TestDriftRulePolicy_MinorDriftNoPromote(t *testing.T) {
	p := DriftRulePolicy{Thresholds: DefaultThresholds()}
	d := model.Diff{Added: map[string]model.AddedEntry{
		"rare_field": {Present: 1, PresentPct: 0.01},
	}}
	dec := p.Decide(d, 100, nil, &model.SchemaRecord{Version: 1})
	require.False(t, dec.Promote)
	require.NotEmpty(t, dec.Reasons)
}

func TestDriftRulePolicy_TypeShiftMajor(t *testing.T) {
	p := DriftRulePolicy{Thresholds: DefaultThresholds()}
	d := model.Diff{Changed: map[string]model.ChangedEntry{
		"value": {OldType: model.NewTypes(model.TypeInteger), NewType: model.NewTypes(model.TypeString), NewDomPct: 0.8},
	}}
	dec := p.Decide(d, 10, nil, &model.SchemaRecord{Version: 1})
	require.True(t, dec.Promote)
	require.Equal(t, []string{"type_shift:value"}, dec.Reasons)
}

func TestDriftRulePolicy_OrderRemovedBeforeAdded(t *testing.T) {
	p := DriftRulePolicy{Thresholds: DefaultThresholds()}
	d := model.Diff{
		Removed: map[string]model.RemovedEntry{"legacy": {PrevPresentPct: 0.9}},
		Added:   map[string]model.AddedEntry{"new_field": {PresentPct: 0.9}},
	}
	dec := p.Decide(d, 10, nil, &model.SchemaRecord{Version: 1})
	require.Equal(t, []string{"removed_common_field:legacy"}, dec.Reasons)
}

func TestCoveragePolicy_NoLatest(t *testing.T) {
	p := CoveragePolicy{Thresholds: DefaultThresholds()}
	dec := p.Decide(model.Diff{}, 10, nil, nil)
	require.True(t, dec.Promote)
}

func TestCoveragePolicy_SchemasEqual(t *testing.T) {
	p := CoveragePolicy{Thresholds: DefaultThresholds()}
	dec := p.Decide(model.Diff{}, 10, nil, &model.SchemaRecord{Version: 1})
	require.False(t, dec.Promote)
	require.Equal(t, []string{"schemas_equal"}, dec.Reasons)
}

func TestCoveragePolicy_CoverageOk(t *testing.T) {
	p := CoveragePolicy{Thresholds: DefaultThresholds()}
	d := model.Diff{Added: map[string]model.AddedEntry{"a": {}}}
	fieldStats := map[string]model.FieldStats{
		"a": {Present: 10, SampleSize: 10},
		"b": {Present: 10, SampleSize: 10},
	}
	dec := p.Decide(d, 10, fieldStats, &model.SchemaRecord{Version: 1})
	require.True(t, dec.Promote)
}

func TestCoveragePolicy_CoverageFail(t *testing.T) {
	p := CoveragePolicy{Thresholds: DefaultThresholds()}
	d := model.Diff{Added: map[string]model.AddedEntry{"a": {}}}
	fieldStats := map[string]model.FieldStats{
		"a": {Present: 1, SampleSize: 10},
	}
	dec := p.Decide(d, 10, fieldStats, &model.SchemaRecord{Version: 1})
	require.False(t, dec.Promote)
}
