package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// Record is a unit of ingestion: a StructuredRecord or an ExtractedRecord.
type Record interface {
	// Source identifies where the record came from. It becomes provenance.
	Source() string
}

// StructuredRecord is keyed data read through a SourceMapping.
type StructuredRecord struct {
	SourceID string         `json:"source_id"`
	Fields   map[string]any `json:"fields"`
}

// Source returns SourceID, or a digest of the fields when it is empty so
// that the same record always carries the same provenance.
func (r StructuredRecord) Source() string {
	if r.SourceID != "" {
		return r.SourceID
	}
	data, _ := json.Marshal(r.Fields)
	sum := sha256.Sum256(data)
	return "record:" + hex.EncodeToString(sum[:8])
}

// ExtractedEntity is an entity mention produced by an upstream extractor.
type ExtractedEntity struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Context    string         `json:"context,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ExtractedRelation links two extracted entities by name.
type ExtractedRelation struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ExtractedRecord carries pre-extracted tuples from an unstructured source.
type ExtractedRecord struct {
	SourceID  string              `json:"source_id"`
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relationships,omitempty"`
}

// Source returns SourceID, or a digest of the content when it is empty.
func (r ExtractedRecord) Source() string {
	if r.SourceID != "" {
		return r.SourceID
	}
	data, _ := json.Marshal(struct {
		E []ExtractedEntity
		R []ExtractedRelation
	}{r.Entities, r.Relations})
	sum := sha256.Sum256(data)
	return "extracted:" + hex.EncodeToString(sum[:8])
}

// Result summarizes one ingested record.
type Result struct {
	SourceID string
	// EntitiesTouched and RelationshipsTouched list only writes that
	// changed the graph; re-ingesting a record reports neither.
	EntitiesTouched      []string
	RelationshipsTouched []types.RelationshipKey
	Conflicts            []*types.IngestionConflict
	Ambiguities          []*types.ResolutionAmbiguity
	// Notes explain parts of the record that were skipped.
	Notes []string
}

// Partial reports whether part of the record was skipped.
func (r *Result) Partial() bool {
	return len(r.Notes) > 0
}

// Status is the metrics label for the record outcome.
func (r *Result) Status() string {
	if r.Partial() {
		return "partial"
	}
	return "ok"
}
