package prompts

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ToPromptTSV renders a slice of structs as tab-separated rows. Columns
// come from `csv` struct tags in field order; untagged fields are skipped.
func ToPromptTSV(data any) (string, error) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return "", fmt.Errorf("ToPromptTSV requires a slice or array, got %T", data)
	}
	if v.Len() == 0 {
		return "", nil
	}

	elemType := v.Type().Elem()
	if elemType.Kind() == reflect.Pointer {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return "", fmt.Errorf("ToPromptTSV requires struct elements, got %s", elemType)
	}

	var (
		header  []string
		indices []int
	)
	for i := 0; i < elemType.NumField(); i++ {
		tag := elemType.Field(i).Tag.Get("csv")
		if tag == "" || tag == "-" {
			continue
		}
		header = append(header, tag)
		indices = append(indices, i)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	if err := w.Write(header); err != nil {
		return "", err
	}
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if elem.Kind() == reflect.Pointer {
			if elem.IsNil() {
				continue
			}
			elem = elem.Elem()
		}
		row := make([]string, len(indices))
		for j, idx := range indices {
			row[j] = formatValue(elem.Field(idx).Interface())
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		// Tabs and newlines would break the row layout.
		return strings.Join(strings.Fields(t), " ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return strings.Join(t, "; ")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// ToPromptJSON serializes data for prompts without escaping HTML or
// non-ASCII characters.
func ToPromptJSON(data any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
