// Package jsonschemaexport converts an inferred model.Schema into a real
// JSON Schema document, for the schema-registry inspection endpoints and
// CLI commands to hand callers something they can feed into any standard
// JSON Schema validator instead of a chrysalis-specific struct tree.
package jsonschemaexport

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// ToJSONSchema renders s as a JSON Schema document describing an object
// with the inferred properties and required fields. A property with a
// single observed type is rendered with "type"; a property observed under
// multiple types (e.g. a field that drifted between string and number) is
// rendered with "type" as an array, mirroring the widening a schema
// inference tool does when it sees mixed-typed samples.
func ToJSONSchema(s model.Schema) *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(s.Properties))
	for _, key := range s.PropertyKeys() {
		props[key] = toPropertySchema(s.Properties[key])
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   s.RequiredSorted(),
	}
}

func toPropertySchema(def model.PropertyDef) *jsonschema.Schema {
	types := def.Type.Sorted()
	if len(types) == 1 {
		return &jsonschema.Schema{Type: types[0]}
	}
	return &jsonschema.Schema{Types: types}
}
