// Package classify implements the ingest pipeline's type classifier (C1): a
// pure mapping from a decoded JSON value to its structural type tag.
package classify

import "github.com/platinummonkey/chrysalis/pkg/ingest/model"

// Classify returns the structural type tag for v, the way a document
// decoded from JSON (via encoding/json, so numbers arrive as float64) would
// be tagged. bool has its own case in the type switch, so it is never
// tagged as a numeric kind. A whole-valued float64 is
// still tagged TypeNumber, never TypeInteger — integer/number compatibility
// is a validator concern (pkg/ingest/validate), not a classification one.
func Classify(v any) model.TypeTag {
	switch val := v.(type) {
	case nil:
		return model.TypeNull
	case bool:
		return model.TypeBoolean
	case float64:
		return model.TypeNumber
	case float32:
		return model.TypeNumber
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return model.TypeInteger
	case string:
		return model.TypeString
	case []any:
		return model.TypeArray
	case map[string]any:
		return model.TypeObject
	case model.Document:
		return model.TypeObject
	default:
		_ = val
		return model.TypeUnknown
	}
}
