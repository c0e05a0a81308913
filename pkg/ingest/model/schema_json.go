package model

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON renders the type set as a single string when it has exactly
// one member, or a lexicographically sorted array otherwise — the same
// convention JSON-Schema uses for its "type" keyword.
func (t Types) MarshalJSON() ([]byte, error) {
	sorted := t.Sorted()
	if len(sorted) == 1 {
		return json.Marshal(sorted[0])
	}
	return json.Marshal(sorted)
}

type propertyDefJSON struct {
	Type Types `json:"type"`
}

// MarshalJSON renders a PropertyDef as {"type": ...}.
func (p PropertyDef) MarshalJSON() ([]byte, error) {
	return json.Marshal(propertyDefJSON{Type: p.Type})
}

// MarshalJSON renders the schema with properties in lexicographic key
// order and a sorted required list, so two structurally identical schemas
// always produce byte-equal JSON regardless of map iteration order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"properties":{`)
	keys := s.PropertyKeys()
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(s.Properties[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteString(`},"required":`)
	rb, err := json.Marshal(s.RequiredSorted())
	if err != nil {
		return nil, err
	}
	buf.Write(rb)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Canonical returns the deterministic JSON encoding used for equality
// comparisons and persistence.
func (s Schema) Canonical() ([]byte, error) {
	return s.MarshalJSON()
}
