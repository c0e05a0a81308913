// Package diff implements the diff engine (C4): the structural delta
// between a prior governing schema and a freshly inferred candidate one.
package diff

import (
	"sort"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Compute returns the structural diff between old and candidate, keyed by
// field name. old may be nil, meaning no prior schema exists yet — every
// candidate field is then reported as Added. fieldStats supplies the
// PresentPct carried on each Added/Removed entry; latest supplies the
// previous-sample presence percentage for Removed entries, falling back to
// the candidate fieldStats when latest is nil.
//
// Keys are always visited in sorted order so the resulting maps are built
// deterministically even though Go map iteration itself is randomized —
// required for the diff to be reproducible across runs over the same input.
func Compute(old *model.Schema, candidate model.Schema, fieldStats map[string]model.FieldStats, latest *model.SchemaRecord) model.Diff {
	d := model.Diff{
		Added:   make(map[string]model.AddedEntry),
		Removed: make(map[string]model.RemovedEntry),
		Changed: make(map[string]model.ChangedEntry),
	}

	oldProps := map[string]model.PropertyDef{}
	if old != nil {
		oldProps = old.Properties
	}

	oldKeys := sortedKeys(oldProps)
	newKeys := sortedKeys(candidate.Properties)

	newSet := make(map[string]struct{}, len(newKeys))
	for _, k := range newKeys {
		newSet[k] = struct{}{}
	}

	// Removed: present in old, absent from candidate.
	for _, k := range oldKeys {
		if _, ok := newSet[k]; ok {
			continue
		}
		prevPct := fieldStats[k].PresentPct()
		if latest != nil {
			if fs, ok := latest.FieldStats[k]; ok {
				prevPct = fs.PresentPct()
			}
		}
		d.Removed[k] = model.RemovedEntry{
			Type:           oldProps[k].Type,
			PrevPresentPct: prevPct,
		}
	}

	oldSet := make(map[string]struct{}, len(oldKeys))
	for _, k := range oldKeys {
		oldSet[k] = struct{}{}
	}

	// Added: present in candidate, absent from old.
	for _, k := range newKeys {
		if _, ok := oldSet[k]; ok {
			continue
		}
		d.Added[k] = model.AddedEntry{
			Type:       candidate.Properties[k].Type,
			Present:    fieldStats[k].Present,
			PresentPct: fieldStats[k].PresentPct(),
		}
	}

	// Changed: present in both, with a differing type set.
	for _, k := range newKeys {
		if _, ok := oldSet[k]; !ok {
			continue
		}
		oldType := oldProps[k].Type
		newType := candidate.Properties[k].Type
		if typesEqual(oldType, newType) {
			continue
		}
		d.Changed[k] = model.ChangedEntry{
			OldType:   oldType,
			NewType:   newType,
			NewDomPct: dominantTypePct(fieldStats[k]),
		}
	}

	return d
}

func sortedKeys(m map[string]model.PropertyDef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dominantTypePct returns the fraction of fs's observed type counts taken by
// its dominant type, or 0 if fs carries no type counts.
func dominantTypePct(fs model.FieldStats) float64 {
	dom, ok := fs.DominantType()
	if !ok {
		return 0
	}
	total := 0
	for _, c := range fs.TypeCounts {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(fs.TypeCounts[dom]) / float64(total)
}

func typesEqual(a, b model.Types) bool {
	if len(a) != len(b) {
		return false
	}
	for tag := range a {
		if !b.Has(tag) {
			return false
		}
	}
	return true
}
