package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// MaxContextLength bounds the context snippet stored on extracted entities.
const MaxContextLength = 500

// CoerceValue turns a raw field value into a property value. Strings that
// parse as numbers become numbers, decimals as float64 and the rest as
// int64. Nested maps are stored as their JSON text.
func CoerceValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return coerceString(t)
	case json.Number:
		return coerceString(t.String())
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			c := CoerceValue(item)
			if c == nil {
				continue
			}
			if !types.IsPropertyValue(c) {
				c = stringify(c)
			}
			out = append(out, c)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		if types.IsPropertyValue(t) {
			return t
		}
		return stringify(t)
	}
}

func coerceString(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if strings.ContainsAny(trimmed, ".eE") {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
		return s
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	return s
}

func stringify(v any) string {
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}

// SanitizeProperties coerces every value and drops nils.
func SanitizeProperties(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == "" {
			continue
		}
		if c := CoerceValue(v); c != nil {
			out[k] = c
		}
	}
	return out
}
