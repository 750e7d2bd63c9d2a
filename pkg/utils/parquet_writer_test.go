package utils

import (
	"context"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetGraphWriter(t *testing.T) {
	ctx := context.Background()
	w, err := NewParquetGraphWriter(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	entities := []*types.CanonicalEntity{
		{
			ID:            "e1",
			CanonicalName: "NVIDIA",
			Type:          types.EntityTypeCompany,
			Aliases:       []string{"NVDA", "Nvidia"},
			Properties:    map[string]any{"sector": "Semiconductors"},
			Provenance:    []string{"src-1"},
			CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{ID: "e2", CanonicalName: "Taiwan", Type: types.EntityTypeCountry},
	}
	path, err := w.WriteEntities(ctx, entities, "snap")
	require.NoError(t, err)

	rows, err := parquet.ReadFile[ParquetEntity](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "NVIDIA", rows[0].CanonicalName)
	assert.Equal(t, []string{"NVDA", "Nvidia"}, rows[0].Aliases)
	assert.JSONEq(t, `{"sector":"Semiconductors"}`, rows[0].Properties)
	require.NotNil(t, rows[0].CreatedAt)
	assert.Nil(t, rows[1].CreatedAt)
	assert.Equal(t, "snap", rows[1].SnapshotID)

	rels := []*types.Relationship{
		{SourceID: "e1", TargetID: "e2", Type: types.RelDependsOn, Weight: 0.9, Observations: 1, Provenance: []string{"src-1"}},
	}
	path, err = w.WriteRelationships(ctx, rels, "snap")
	require.NoError(t, err)

	relRows, err := parquet.ReadFile[ParquetRelationship](path)
	require.NoError(t, err)
	require.Len(t, relRows, 1)
	assert.Equal(t, "DEPENDS_ON", relRows[0].Type)
	assert.Equal(t, 0.9, relRows[0].Weight)
}

func TestParquetGraphWriter_Empty(t *testing.T) {
	w, err := NewParquetGraphWriter(t.TempDir())
	require.NoError(t, err)

	path, err := w.WriteEntities(context.Background(), nil, "snap")
	require.NoError(t, err)
	assert.Empty(t, path)
}
