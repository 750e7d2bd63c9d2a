package driver

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeConversionError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *TypeConversionError
		expected string
	}{
		{
			name:     "with field",
			err:      &TypeConversionError{Expected: "string", Actual: "int64", Field: "canonical_name"},
			expected: `type conversion error for field "canonical_name": expected string, got int64`,
		},
		{
			name:     "without field",
			err:      &TypeConversionError{Expected: "dbtype.Node", Actual: "nil"},
			expected: "type conversion error: expected dbtype.Node, got nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAsStringList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  any
		want   []string
		wantOK bool
	}{
		{"string slice", []string{"NVDA"}, []string{"NVDA"}, true},
		{"any slice", []any{"NVDA", "Nvidia"}, []string{"NVDA", "Nvidia"}, true},
		{"empty any slice", []any{}, []string{}, true},
		{"mixed", []any{"NVDA", int64(1)}, nil, false},
		{"nil", nil, nil, false},
		{"scalar", "NVDA", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := AsStringList(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustRecordSlice(t *testing.T) {
	t.Parallel()

	records, err := MustRecordSlice(nil, "records")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = MustRecordSlice("oops", "records")
	var convErr *TypeConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "records", convErr.Field)
}

func entityNode(elementID, id, name string) dbtype.Node {
	return dbtype.Node{
		ElementId: elementID,
		Labels:    []string{"Entity"},
		Props: map[string]any{
			"id":             id,
			"canonical_name": name,
			"type":           "Company",
			"aliases":        []any{name + " Inc"},
			"provenance":     []any{"src-1"},
			"properties":     `{"sector":"Semis","products":["GPU"]}`,
			"created_at":     "2026-01-02T03:04:05Z",
		},
	}
}

func TestEntityFromNode(t *testing.T) {
	t.Parallel()

	e, err := entityFromNode(entityNode("4:x:1", "a", "CompanyA"))
	require.NoError(t, err)
	assert.Equal(t, "a", e.ID)
	assert.Equal(t, "CompanyA", e.CanonicalName)
	assert.Equal(t, types.EntityTypeCompany, e.Type)
	assert.Equal(t, []string{"CompanyA Inc"}, e.Aliases)
	assert.Equal(t, "Semis", e.Properties["sector"])
	assert.Equal(t, []any{"GPU"}, e.Properties["products"])
	assert.Equal(t, 2026, e.CreatedAt.Year())

	_, err = entityFromNode(dbtype.Node{Props: map[string]any{"id": "a"}})
	assert.Error(t, err)
}

func TestEntityPropertiesRoundTrip(t *testing.T) {
	t.Parallel()

	in := &types.CanonicalEntity{
		ID:            "n1",
		CanonicalName: "NVIDIA",
		Type:          types.EntityTypeCompany,
		Aliases:       []string{"NVDA"},
		Properties:    map[string]any{"ticker": "NVDA", "employees": 29600.0},
	}
	props, err := entityToProperties(in)
	require.NoError(t, err)
	props["id"] = in.ID

	out, err := entityFromNode(dbtype.Node{Props: props})
	require.NoError(t, err)
	assert.Equal(t, in.Properties, out.Properties)
	assert.Equal(t, in.Aliases, out.Aliases)
	assert.Empty(t, out.Provenance)
}

func TestPathFromRecord(t *testing.T) {
	t.Parallel()

	a := entityNode("4:x:1", "a", "CompanyA")
	b := entityNode("4:x:2", "b", "SupplierB")
	x := entityNode("4:x:3", "x", "CountryX")
	r := entityNode("4:x:4", "r", "RiskEvent")

	rel := func(start, end, typ string, weight float64) dbtype.Relationship {
		return dbtype.Relationship{
			StartElementId: start,
			EndElementId:   end,
			Type:           relLabel,
			Props:          map[string]any{"type": typ, "weight": weight, "observations": int64(1), "provenance": []any{"s"}},
		}
	}

	record := &db.Record{
		Keys: []string{"nodes", "rels"},
		Values: []any{
			[]any{a, b, x, r},
			[]any{
				rel("4:x:1", "4:x:2", "DEPENDS_ON", 0.9),
				rel("4:x:2", "4:x:3", "LOCATED_IN", 1.0),
				rel("4:x:4", "4:x:3", "AFFECTS", 0.95),
			},
		},
	}

	p, err := pathFromRecord(record)
	require.NoError(t, err)
	require.Equal(t, 3, p.Length())
	assert.Equal(t, types.DirectionOutgoing, p.Hops[0].Direction)
	assert.Equal(t, types.DirectionIncoming, p.Hops[2].Direction)
	assert.Equal(t, "r", p.Hops[2].Relationship.SourceID)
	assert.Equal(t, "x", p.Hops[2].Relationship.TargetID)
	assert.Equal(t, "CompanyA -[DEPENDS_ON]-> SupplierB -[LOCATED_IN]-> CountryX <-[AFFECTS]- RiskEvent", p.String())
}

func TestBuildPathQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		direction types.Direction
		pattern   string
	}{
		{types.DirectionOutgoing, "(s:Entity)-[:RELATES_TO*1..3]->(t:Entity)"},
		{types.DirectionIncoming, "(s:Entity)<-[:RELATES_TO*1..3]-(t:Entity)"},
		{types.DirectionAny, "(s:Entity)-[:RELATES_TO*1..3]-(t:Entity)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.direction), func(t *testing.T) {
			query, params := buildPathQuery(PathQuery{
				StartIDs:      []string{"a"},
				RelationTypes: []types.RelationType{types.RelDependsOn},
				MaxHops:       3,
				Limit:         100,
				Direction:     tt.direction,
			})
			assert.Contains(t, query, tt.pattern)
			assert.Equal(t, []string{}, params["target_ids"])
			assert.Equal(t, []string{"DEPENDS_ON"}, params["types"])
			assert.Equal(t, int64(100), params["limit"])
		})
	}
}
