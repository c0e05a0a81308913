package jsonschemaexport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

func TestToJSONSchema_SingleType(t *testing.T) {
	schema := model.Schema{
		Properties: map[string]model.PropertyDef{
			"name": {Type: model.NewTypes(model.TypeString)},
			"age":  {Type: model.NewTypes(model.TypeInteger)},
		},
		Required: []string{"name"},
	}

	out := ToJSONSchema(schema)
	require.Equal(t, "object", out.Type)
	require.Equal(t, []string{"name"}, out.Required)
	require.Equal(t, "string", out.Properties["name"].Type)
	require.Equal(t, "integer", out.Properties["age"].Type)
}

func TestToJSONSchema_MultiType(t *testing.T) {
	schema := model.Schema{
		Properties: map[string]model.PropertyDef{
			"value": {Type: model.NewTypes(model.TypeString, model.TypeNumber)},
		},
	}

	out := ToJSONSchema(schema)
	require.Empty(t, out.Properties["value"].Type)
	require.Equal(t, []string{"number", "string"}, out.Properties["value"].Types)
}
