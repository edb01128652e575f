package sanitize

import (
	"encoding/json"

	"github.com/microcosm-cc/bluemonday"
)

// NewPolicy allows a small set of benign inline tags and strips
// everything else, scripts and event handlers included.
func NewPolicy() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("b", "i", "em", "strong", "u", "br")
	return policy
}

// Walk sanitizes every string leaf of a decoded JSON tree. Non-string
// values pass through unchanged. The result is a fixed point: walking
// an already-sanitized tree returns an identical tree.
func Walk(policy *bluemonday.Policy, value any) any {
	switch v := value.(type) {
	case string:
		return policy.Sanitize(v)
	case map[string]any:
		for key, item := range v {
			v[key] = Walk(policy, item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = Walk(policy, item)
		}
		return v
	default:
		return v
	}
}

// Document sanitizes a raw JSON document, returning it untouched when
// it does not parse.
func Document(policy *bluemonday.Policy, raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return raw
	}

	sanitized, err := json.Marshal(Walk(policy, tree))
	if err != nil {
		return raw
	}

	return sanitized
}
