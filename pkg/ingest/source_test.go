package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONRecords(t *testing.T) {
	t.Run("mixed array", func(t *testing.T) {
		recs, err := ReadJSONRecords(strings.NewReader(`[
			{"source_id": "row-1", "company": "NVIDIA", "revenue": 60.9},
			{"source_id": "news-2", "entities": [{"name": "TSMC", "type": "Company"}],
			 "relationships": [{"source": "NVIDIA", "target": "TSMC", "type": "DEPENDS_ON"}]}
		]`), nil)
		require.NoError(t, err)
		require.Len(t, recs, 2)

		structured, ok := recs[0].(StructuredRecord)
		require.True(t, ok)
		assert.Equal(t, "row-1", structured.Source())
		assert.Equal(t, "NVIDIA", structured.Fields["company"])
		assert.Equal(t, json.Number("60.9"), structured.Fields["revenue"])
		assert.NotContains(t, structured.Fields, "source_id")

		extracted, ok := recs[1].(ExtractedRecord)
		require.True(t, ok)
		assert.Equal(t, "news-2", extracted.Source())
		require.Len(t, extracted.Relations, 1)
		assert.Equal(t, "TSMC", extracted.Relations[0].Target)
	})

	t.Run("root key", func(t *testing.T) {
		recs, err := ReadJSONRecords(strings.NewReader(`{"rows": [{"company": "A"}, {"company": "B"}]}`), &SourceMapping{Root: "rows", EntityKey: "company"})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("missing root key", func(t *testing.T) {
		_, err := ReadJSONRecords(strings.NewReader(`{"data": []}`), &SourceMapping{Root: "rows", EntityKey: "company"})
		assert.Error(t, err)
	})

	t.Run("scalar document", func(t *testing.T) {
		_, err := ReadJSONRecords(strings.NewReader(`42`), nil)
		assert.Error(t, err)
	})
}

func TestReadJSONLines(t *testing.T) {
	recs, err := ReadJSONLines(strings.NewReader("{\"company\": \"A\"}\n\n{\"company\": \"B\"}\n"), nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = ReadJSONLines(strings.NewReader("{\"company\": \"A\"}\n{broken\n"), nil)
	assert.ErrorContains(t, err, "line 2")
}

func TestReadCSVRecords(t *testing.T) {
	recs, err := ReadCSVRecords(strings.NewReader("\ufeffcompany,supplier,criticality,source_id\nNVIDIA,TSMC,0.8,r1\nAMD,,0.5,\n"))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0].(StructuredRecord)
	assert.Equal(t, "r1", first.SourceID)
	assert.Equal(t, map[string]any{"company": "NVIDIA", "supplier": "TSMC", "criticality": "0.8"}, first.Fields)

	second := recs[1].(StructuredRecord)
	assert.NotContains(t, second.Fields, "supplier")
	assert.True(t, strings.HasPrefix(second.Source(), "record:"))

	empty, err := ReadCSVRecords(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReadRecordsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suppliers.csv")
	require.NoError(t, os.WriteFile(path, []byte("company,supplier\nNVIDIA,TSMC\n"), 0o644))

	recs, err := ReadRecordsFile(path, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = ReadRecordsFile(filepath.Join(dir, "missing.json"), nil)
	assert.Error(t, err)
}

func TestParseMapping(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", "entity_key: company\nrelationships:\n  - type: DEPENDS_ON\n    target_key: supplier\n", ""},
		{"no entity key", "entity_type: Company\n", "entity_key"},
		{"relationship without target", "entity_key: company\nrelationships:\n  - type: DEPENDS_ON\n", "target_key"},
		{"relationship without type", "entity_key: company\nrelationships:\n  - target_key: supplier\n", "no type"},
		{"malformed", "entity_key: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMapping([]byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "company", m.EntityKey)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"integer string", "42", int64(42)},
		{"decimal string", "0.8", 0.8},
		{"exponent", "1e3", 1000.0},
		{"word with e", "Korea", "Korea"},
		{"json number", json.Number("7"), int64(7)},
		{"list", []any{"1", "x", nil}, []any{int64(1), "x"}},
		{"nested map", map[string]any{"a": 1}, `{"a":1}`},
		{"bool", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceValue(tt.in))
		})
	}
}
