package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// embeddedImagePrefix marks an inline image payload (a data URL).
const embeddedImagePrefix = "data:image/"

// StripEmbeddedImages walks a JSON document and blanks every inline image
// string longer than maxBytes. It returns the rewritten document and how
// many images were removed. Links to hosted images are kept.
func StripEmbeddedImages(data json.RawMessage, maxBytes int) (json.RawMessage, int, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, 0, fmt.Errorf("decoding document: %w", err)
	}
	n := 0
	v = stripValue(v, maxBytes, &n)
	if n == 0 {
		return data, 0, nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding document: %w", err)
	}
	return out, n, nil
}

func stripValue(v any, maxBytes int, n *int) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = stripValue(child, maxBytes, n)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = stripValue(child, maxBytes, n)
		}
		return t
	case string:
		if len(t) > maxBytes && strings.HasPrefix(t, embeddedImagePrefix) {
			*n++
			return ""
		}
		return t
	default:
		return v
	}
}
