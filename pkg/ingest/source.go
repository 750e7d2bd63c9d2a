package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadRecordsFile reads records from a .json, .jsonl or .csv file.
func ReadRecordsFile(path string, mapping *SourceMapping) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSVRecords(f)
	case ".jsonl", ".ndjson":
		return ReadJSONLines(f, mapping)
	default:
		return ReadJSONRecords(f, mapping)
	}
}

// ReadJSONRecords decodes a JSON document into records. An object with an
// "entities" array is one extracted record. An array may mix extracted and
// structured records. When mapping.Root is set the records are read from
// that key of the top-level object.
func ReadJSONRecords(r io.Reader, mapping *SourceMapping) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	if obj, ok := doc.(map[string]any); ok && mapping != nil && mapping.Root != "" {
		inner, found := obj[mapping.Root]
		if !found {
			return nil, fmt.Errorf("root key %q not found", mapping.Root)
		}
		doc = inner
	}

	switch v := doc.(type) {
	case []any:
		out := make([]Record, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is not an object", i)
			}
			rec, err := recordFromObject(obj)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			out = append(out, rec)
		}
		return out, nil
	case map[string]any:
		rec, err := recordFromObject(v)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	default:
		return nil, errors.New("records must be a JSON object or array")
	}
}

// ReadJSONLines reads one JSON record per line. Blank lines are skipped.
func ReadJSONLines(r io.Reader, mapping *SourceMapping) ([]Record, error) {
	var out []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		recs, err := ReadJSONRecords(bytes.NewReader(text), mapping)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, recs...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lines: %w", err)
	}
	return out, nil
}

func recordFromObject(obj map[string]any) (Record, error) {
	if _, extracted := obj["entities"]; extracted {
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		var rec ExtractedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("malformed extracted record: %w", err)
		}
		return rec, nil
	}

	rec := StructuredRecord{Fields: make(map[string]any, len(obj))}
	for k, v := range obj {
		if k == "source_id" {
			if s, ok := v.(string); ok {
				rec.SourceID = s
				continue
			}
		}
		rec.Fields[k] = v
	}
	return rec, nil
}

// ReadCSVRecords reads a CSV file with a header row. Empty cells are left
// out of the record; numeric cells are coerced during ingestion.
func ReadCSVRecords(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var out []Record
	for row := 2; ; row++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", row, err)
		}
		rec := StructuredRecord{Fields: make(map[string]any, len(header))}
		for i, cell := range cells {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if header[i] == "source_id" {
				rec.SourceID = cell
				continue
			}
			rec.Fields[header[i]] = cell
		}
		out = append(out, rec)
	}
	return out, nil
}
