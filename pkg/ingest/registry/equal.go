package registry

import (
	"bytes"

	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
)

// CanonicalEqual reports whether a and b marshal to byte-identical
// canonical JSON. Both registry implementations delegate their Equal
// method to this so the comparison semantics can never drift between
// backends.
func CanonicalEqual(a, b model.Schema) bool {
	ab, err := a.Canonical()
	if err != nil {
		return false
	}
	bb, err := b.Canonical()
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
