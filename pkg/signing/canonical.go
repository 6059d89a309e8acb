// Package signing canonicalizes agent cards and attaches or verifies
// detached JWS signatures over the canonical form.
package signing

import (
	"bytes"
	"encoding/json"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

/*
Canonicalize returns the card's signing payload: JSON with sorted keys and
no whitespace, the signatures list removed, and empty strings, lists and
objects pruned recursively.  Zero and false survive pruning, so adding a
real falsy value changes the payload while adding an empty container does
not.
*/
func Canonicalize(card *a2a.AgentCard) ([]byte, error) {
	raw, err := json.Marshal(card)

	if err != nil {
		return nil, err
	}

	var tree map[string]any

	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}

	delete(tree, "signatures")

	cleaned, _ := cleanEmpty(tree).(map[string]any)

	return marshalCanonical(cleaned)
}

func cleanEmpty(value any) any {
	switch v := value.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(v))

		for key, elem := range v {
			if e := cleanEmpty(elem); keepValue(e) {
				cleaned[key] = e
			}
		}

		return cleaned
	case []any:
		cleaned := make([]any, 0, len(v))

		for _, elem := range v {
			if e := cleanEmpty(elem); keepValue(e) {
				cleaned = append(cleaned, e)
			}
		}

		return cleaned
	default:
		return value
	}
}

func keepValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		// Numbers and booleans always survive, zero or not.
		return true
	}
}

// marshalCanonical relies on encoding/json emitting map keys in sorted
// order; HTML escaping is disabled so URLs survive byte-for-byte.
func marshalCanonical(value any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(value); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
