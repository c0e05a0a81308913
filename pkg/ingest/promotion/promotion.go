// Package promotion implements the promotion policy (C5): the decision of
// whether a freshly diffed candidate schema should be registered as a new
// version.
package promotion

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Thresholds configures the drift-rule and coverage policies. Zero-value
// fields are not valid; use DefaultThresholds as a starting point.
type Thresholds struct {
	AddedMajorPct       float64
	RemovedMajorPrevPct float64
	TypeShiftMajorPct   float64
	PromotePct          float64 // coverage policy only
}

// DefaultThresholds mirrors spec.md's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AddedMajorPct:       0.10,
		RemovedMajorPrevPct: 0.20,
		TypeShiftMajorPct:   0.50,
		PromotePct:          0.90,
	}
}

// Policy decides whether a candidate schema should be promoted to a new
// registered version. fieldStats is the candidate's per-field statistics
// from the current sample; latest is the previously promoted record, or nil
// if none exists yet.
type Policy interface {
	Decide(d model.Diff, sampleSize int, fieldStats map[string]model.FieldStats, latest *model.SchemaRecord) model.Decision
}

// Kind names a selectable policy implementation.
type Kind string

const (
	KindDriftRule Kind = "drift_rule"
	KindCoverage  Kind = "coverage"
)

// NewPolicy constructs the named policy, mirroring a validated-constructor
// shape rather than an accumulating builder since policies are immutable
// value configs. Returns an error for an unrecognized kind.
func NewPolicy(kind Kind, t Thresholds) (Policy, error) {
	switch kind {
	case KindDriftRule:
		return DriftRulePolicy{Thresholds: t}, nil
	case KindCoverage:
		return CoveragePolicy{Thresholds: t}, nil
	default:
		return nil, fmt.Errorf("promotion: unknown policy kind %q", kind)
	}
}

// DriftRulePolicy promotes on any "major" structural drift, evaluated in a
// fixed short-circuit order: removed fields first, then added fields, then
// type shifts. No latest record at all is always a promotion.
type DriftRulePolicy struct {
	Thresholds
}

// Decide implements Policy.
func (p DriftRulePolicy) Decide(d model.Diff, sampleSize int, fieldStats map[string]model.FieldStats, latest *model.SchemaRecord) model.Decision {
	if latest == nil {
		return model.Decision{Promote: true, Reasons: []string{"no_latest_schema"}}
	}

	for _, f := range sortedRemovedKeys(d) {
		info := d.Removed[f]
		if info.PrevPresentPct >= p.RemovedMajorPrevPct {
			return model.Decision{Promote: true, Reasons: []string{"removed_common_field:" + f}}
		}
	}

	for _, f := range sortedAddedKeys(d) {
		info := d.Added[f]
		minCount := int(p.AddedMajorPct * float64(sampleSize))
		if minCount < 1 {
			minCount = 1
		}
		if sampleSize > 0 && (info.PresentPct >= p.AddedMajorPct || info.Present >= minCount) {
			return model.Decision{Promote: true, Reasons: []string{"added_common_field:" + f}}
		}
	}

	for _, f := range sortedChangedKeys(d) {
		info := d.Changed[f]
		if info.NewDomPct >= p.TypeShiftMajorPct {
			return model.Decision{Promote: true, Reasons: []string{"type_shift:" + f}}
		}
	}

	return model.Decision{Promote: false, Reasons: []string{"no_major_drift"}}
}

// CoveragePolicy promotes iff the candidate differs from latest and the
// fraction of candidate fields individually meeting PromotePct presence is
// itself at least PromotePct.
type CoveragePolicy struct {
	Thresholds
}

// Decide implements Policy.
func (p CoveragePolicy) Decide(d model.Diff, sampleSize int, fieldStats map[string]model.FieldStats, latest *model.SchemaRecord) model.Decision {
	if latest == nil {
		return model.Decision{Promote: true, Reasons: []string{"no_latest_schema"}}
	}
	if d.IsEmpty() {
		return model.Decision{Promote: false, Reasons: []string{"schemas_equal"}}
	}

	total := len(fieldStats)
	if total == 0 {
		total = 1
	}
	okCount := 0
	for _, fs := range fieldStats {
		if fs.PresentPct() >= p.PromotePct {
			okCount++
		}
	}

	coverage := float64(okCount) / float64(total)
	if coverage >= p.PromotePct {
		return model.Decision{Promote: true, Reasons: []string{fmt.Sprintf("coverage_ok(%.2f)", coverage)}}
	}
	return model.Decision{Promote: false, Reasons: []string{fmt.Sprintf("coverage_fail(%.2f)", coverage)}}
}

func sortedRemovedKeys(d model.Diff) []string {
	keys := make([]string, 0, len(d.Removed))
	for k := range d.Removed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAddedKeys(d model.Diff) []string {
	keys := make([]string, 0, len(d.Added))
	for k := range d.Added {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedChangedKeys(d model.Diff) []string {
	keys := make([]string, 0, len(d.Changed))
	for k := range d.Changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
