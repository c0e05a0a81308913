package validate

import (
	"testing"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/stretchr/testify/require"
)

func schemaOf(required []string, props map[string]model.TypeTag) model.Schema {
	s := model.Schema{Properties: make(map[string]model.PropertyDef), Required: required}
	for k, t := range props {
		s.Properties[k] = model.PropertyDef{Type: model.NewTypes(t)}
	}
	return s
}

func TestValidate_EmptySchemaAlwaysOk(t *testing.T) {
	ok, reason := Validate(model.Document{"x": 1}, model.Schema{}, nil, DefaultConfig())
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	schema := schemaOf([]string{"id"}, map[string]model.TypeTag{"id": model.TypeInteger})
	ok, reason := Validate(model.Document{}, schema, nil, DefaultConfig())
	require.False(t, ok)
	require.Equal(t, "missing_required_field:id", reason)
}

func TestValidate_TypeMismatch(t *testing.T) {
	schema := schemaOf(nil, map[string]model.TypeTag{"name": model.TypeString})
	ok, reason := Validate(model.Document{"name": 42}, schema, nil, DefaultConfig())
	require.False(t, ok)
	require.Equal(t, "type_mismatch:name:expected_string", reason)
}

func TestValidate_IntegerLikeFloatPromotes(t *testing.T) {
	schema := schemaOf(nil, map[string]model.TypeTag{"count": model.TypeInteger})
	ok, _ := Validate(model.Document{"count": float64(5)}, schema, nil, DefaultConfig())
	require.True(t, ok)
}

func TestValidate_FractionalFloatFailsIntegerExpectation(t *testing.T) {
	schema := schemaOf(nil, map[string]model.TypeTag{"count": model.TypeInteger})
	ok, reason := Validate(model.Document{"count": 5.5}, schema, nil, DefaultConfig())
	require.False(t, ok)
	require.Equal(t, "type_mismatch:count:expected_integer", reason)
}

func TestValidate_NumberAcceptsInteger(t *testing.T) {
	schema := schemaOf(nil, map[string]model.TypeTag{"amount": model.TypeNumber})
	ok, _ := Validate(model.Document{"amount": 7}, schema, nil, DefaultConfig())
	require.True(t, ok)
}

func TestValidate_StringParsesAsNumberWhenPromotionAllowed(t *testing.T) {
	schema := schemaOf(nil, map[string]model.TypeTag{"amount": model.TypeNumber})
	cfg := DefaultConfig()
	ok, _ := Validate(model.Document{"amount": "3.14"}, schema, nil, cfg)
	require.True(t, ok)

	cfg.AllowTypePromotion = false
	ok, reason := Validate(model.Document{"amount": "3.14"}, schema, nil, cfg)
	require.False(t, ok)
	require.Equal(t, "type_mismatch:amount:expected_number", reason)
}

func TestValidate_UnknownFieldsIgnored(t *testing.T) {
	schema := schemaOf(nil, map[string]model.TypeTag{"id": model.TypeInteger})
	ok, _ := Validate(model.Document{"id": 1, "extra": "whatever"}, schema, nil, DefaultConfig())
	require.True(t, ok)
}

func TestValidate_Purity(t *testing.T) {
	doc := model.Document{"id": 1}
	schema := schemaOf([]string{"id"}, map[string]model.TypeTag{"id": model.TypeInteger})

	before := len(doc)
	Validate(doc, schema, nil, DefaultConfig())
	require.Equal(t, before, len(doc))
	require.Equal(t, 1, doc["id"])
}
