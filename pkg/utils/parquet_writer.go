package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// ParquetGraphWriter writes graph snapshots as Parquet files, one file per
// call, under baseDir/entities and baseDir/relationships.
type ParquetGraphWriter struct {
	baseDir string
	now     func() time.Time
}

// NewParquetGraphWriter creates the snapshot directories under baseDir.
func NewParquetGraphWriter(baseDir string) (*ParquetGraphWriter, error) {
	for _, d := range []string{"entities", "relationships"} {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return &ParquetGraphWriter{baseDir: baseDir, now: time.Now}, nil
}

// ParquetEntity is the row schema for a canonical entity.
type ParquetEntity struct {
	ID            string     `parquet:"id"`
	CanonicalName string     `parquet:"canonical_name"`
	EntityType    string     `parquet:"entity_type"`
	Aliases       []string   `parquet:"aliases,list"`
	Provenance    []string   `parquet:"provenance,list"`
	Properties    string     `parquet:"properties"` // JSON string
	CreatedAt     *time.Time `parquet:"created_at"`
	SnapshotID    string     `parquet:"snapshot_id"`
}

// ParquetRelationship is the row schema for a relationship.
type ParquetRelationship struct {
	SourceID     string   `parquet:"source_id"`
	TargetID     string   `parquet:"target_id"`
	Type         string   `parquet:"type"`
	Weight       float64  `parquet:"weight"`
	Observations int64    `parquet:"observations"`
	Provenance   []string `parquet:"provenance,list"`
	Properties   string   `parquet:"properties"` // JSON string
	SnapshotID   string   `parquet:"snapshot_id"`
}

// WriteEntities writes entities to one Parquet file and returns its path.
func (w *ParquetGraphWriter) WriteEntities(ctx context.Context, entities []*types.CanonicalEntity, snapshotID string) (string, error) {
	if len(entities) == 0 {
		return "", nil
	}

	rows := make([]ParquetEntity, 0, len(entities))
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		props, err := json.Marshal(e.Properties)
		if err != nil {
			return "", fmt.Errorf("failed to marshal properties of %s: %w", e.ID, err)
		}
		row := ParquetEntity{
			ID:            e.ID,
			CanonicalName: e.CanonicalName,
			EntityType:    string(e.Type),
			Aliases:       e.Aliases,
			Provenance:    e.Provenance,
			Properties:    string(props),
			SnapshotID:    snapshotID,
		}
		if !e.CreatedAt.IsZero() {
			created := e.CreatedAt
			row.CreatedAt = &created
		}
		rows = append(rows, row)
	}

	path := filepath.Join(w.baseDir, "entities", fmt.Sprintf("entities_%s_%d.parquet", snapshotID, w.now().UnixNano()))
	return path, parquet.WriteFile(path, rows)
}

// WriteRelationships writes relationships to one Parquet file and returns its path.
func (w *ParquetGraphWriter) WriteRelationships(ctx context.Context, rels []*types.Relationship, snapshotID string) (string, error) {
	if len(rels) == 0 {
		return "", nil
	}

	rows := make([]ParquetRelationship, 0, len(rels))
	for _, r := range rels {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		props, err := json.Marshal(r.Properties)
		if err != nil {
			return "", fmt.Errorf("failed to marshal properties of %s: %w", r.Key(), err)
		}
		rows = append(rows, ParquetRelationship{
			SourceID:     r.SourceID,
			TargetID:     r.TargetID,
			Type:         string(r.Type),
			Weight:       r.Weight,
			Observations: int64(r.Observations),
			Provenance:   r.Provenance,
			Properties:   string(props),
			SnapshotID:   snapshotID,
		})
	}

	path := filepath.Join(w.baseDir, "relationships", fmt.Sprintf("relationships_%s_%d.parquet", snapshotID, w.now().UnixNano()))
	return path, parquet.WriteFile(path, rows)
}

// Close is a no-op; every write produces a complete file.
func (w *ParquetGraphWriter) Close() error {
	return nil
}
