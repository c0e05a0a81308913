// Package validate implements the validator (C6): checking one document
// against a governing schema.
package validate

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/platinummonkey/chrysalis/pkg/ingest/classify"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// Mode selects how the required-field set is derived. Strict mode also
// treats as required every field whose fieldStats presence meets
// RequiredPct; lenient mode takes required fields only from the schema's
// explicit list. Type checks are the same in both modes.
type Mode int

const (
	ModeStrict Mode = iota
	ModeLenient
)

// Config carries the validator's tunables.
type Config struct {
	Mode               Mode
	RequiredPct        float64
	AllowTypePromotion bool
}

// DefaultConfig mirrors spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeStrict,
		RequiredPct:        0.90,
		AllowTypePromotion: true,
	}
}

// compatiblePairs maps an allowed schema type to the set of classified tags
// it accepts beyond an exact match, when type promotion is allowed. Kept as
// a lookup table rather than an if/elif chain so each value triggers at
// most one verdict.
var compatiblePairs = map[model.TypeTag]map[model.TypeTag]struct{}{
	model.TypeInteger: {model.TypeInteger: {}},
	model.TypeNumber:  {model.TypeInteger: {}, model.TypeNumber: {}},
	model.TypeString:  {model.TypeString: {}},
}

// Validate checks doc against schema and returns (true, "") when it
// conforms, or (false, reason) on the first violation found. It never
// mutates doc or schema, and never consults a schema registry — callers
// supply the governing schema already resolved. In strict mode the required
// set is widened beyond schema.Required to any field whose fieldStats
// present_pct meets cfg.RequiredPct, so a field that drifted to near-universal
// presence is enforced even before it is explicitly promoted into the
// schema's required list.
func Validate(doc model.Document, schema model.Schema, fieldStats map[string]model.FieldStats, cfg Config) (bool, string) {
	if len(schema.Properties) == 0 && len(schema.Required) == 0 {
		return true, ""
	}

	for _, required := range effectiveRequired(schema, fieldStats, cfg) {
		if _, present := doc[required]; !present {
			return false, "missing_required_field:" + required
		}
	}

	for _, field := range schema.PropertyKeys() {
		val, present := doc[field]
		if !present {
			continue
		}
		allowed := schema.Properties[field].Type
		if ok, reason := validateField(field, val, allowed, cfg); !ok {
			return false, reason
		}
	}

	return true, ""
}

// effectiveRequired unions schema.Required with every field whose fieldStats
// present_pct is at or above cfg.RequiredPct, per the strict-mode derivation
// rule: required = explicit list OR high-presence drift. Lenient mode skips
// the drift-derived half and enforces only the explicit list.
func effectiveRequired(schema model.Schema, fieldStats map[string]model.FieldStats, cfg Config) []string {
	required := make(map[string]struct{}, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = struct{}{}
	}
	if cfg.Mode == ModeStrict {
		for field, fs := range fieldStats {
			if fs.PresentPct() >= cfg.RequiredPct {
				required[field] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(required))
	for field := range required {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// validateField dispatches on the value's classified tag exactly once, so
// a value can fail at most one type check — replacing the non-exclusive
// if/elif chain the rule was originally modeled on.
func validateField(field string, val any, allowed model.Types, cfg Config) (bool, string) {
	tag := classify.Classify(val)

	for _, want := range allowed.Sorted() {
		wantTag := model.TypeTag(want)
		if tag == wantTag {
			return true, ""
		}
		if cfg.AllowTypePromotion && typePromotes(tag, wantTag, val) {
			return true, ""
		}
	}

	return false, "type_mismatch:" + field + ":expected_" + string(allowed.Sorted()[0])
}

// typePromotes reports whether a value classified as have may stand in for
// a schema expectation of want, under the integer↔number↔string promotion
// rules: a whole-valued number satisfies an integer expectation, any number
// satisfies a number expectation, and a string that parses as a finite
// decimal satisfies a number expectation.
func typePromotes(have, want model.TypeTag, val any) bool {
	if set, ok := compatiblePairs[want]; ok {
		if _, ok := set[have]; ok {
			return true
		}
	}

	switch want {
	case model.TypeInteger:
		if have == model.TypeNumber {
			if f, ok := asFloat(val); ok {
				return f == float64(int64(f))
			}
		}
	case model.TypeNumber:
		if have == model.TypeString {
			if s, ok := val.(string); ok {
				f, err := strconv.ParseFloat(s, 64)
				// ParseFloat also accepts "NaN", "Inf" and hex floats,
				// none of which is a finite decimal.
				return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) &&
					!strings.ContainsAny(s, "xX")
			}
		}
	}
	return false
}

func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
