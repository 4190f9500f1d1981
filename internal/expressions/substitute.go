// Package expressions implements {{placeholder}} substitution for action
// parameters. Substitution is pure: no I/O, no errors, unknown placeholders
// are left verbatim so a half-populated context never destroys a template.
package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Substitute resolves every {{name}} placeholder in value against ctx and
// returns the resolved value. Strings are scanned for placeholders; slices
// and maps are walked recursively preserving order, length, and keys; any
// other type is returned unchanged.
func Substitute(value any, ctx map[string]any) any {
	switch v := value.(type) {
	case string:
		return SubstituteString(v, ctx)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Substitute(elem, ctx)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = Substitute(elem, ctx)
		}
		return out
	default:
		return value
	}
}

// SubstituteString replaces every {{name}} occurrence in s with the
// stringified context value. Placeholders whose key is absent from ctx are
// kept literally, including the braces.
func SubstituteString(s string, ctx map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "{{")
		if idx == -1 {
			result.WriteString(s[i:])
			break
		}

		result.WriteString(s[i : i+idx])
		start := i + idx + 2 // skip "{{"

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			// Unterminated marker: keep the rest verbatim.
			result.WriteString(s[i+idx:])
			break
		}
		end += start

		key := strings.TrimSpace(s[start:end])
		if val, ok := lookup(ctx, key); ok {
			result.WriteString(stringify(val))
		} else {
			result.WriteString(s[i+idx : end+2])
		}

		i = end + 2 // skip "}}"
	}

	return result.String()
}

// SubstituteMap applies Substitute to every value of m, preserving keys.
// Returns nil for a nil map.
func SubstituteMap(m map[string]any, ctx map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Substitute(v, ctx)
	}
	return out
}

func lookup(ctx map[string]any, key string) (any, bool) {
	if ctx == nil || key == "" {
		return nil, false
	}
	v, ok := ctx[key]
	return v, ok
}

// stringify converts a context value into its inline text form. Strings
// embed as-is; structured values JSON-encode so objects chained through
// lastResult stay machine-readable.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
