package reasoner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/groundgraph/pkg/types"
)

func TestBuildEvidence(t *testing.T) {
	a := &types.CanonicalEntity{ID: "a", CanonicalName: "CompanyA"}
	b := &types.CanonicalEntity{ID: "b", CanonicalName: "SupplierB"}
	x := &types.CanonicalEntity{ID: "x", CanonicalName: "CountryX"}
	r := &types.CanonicalEntity{ID: "r", CanonicalName: "RiskEvent"}

	dependsOn := &types.Relationship{SourceID: "a", TargetID: "b", Type: types.RelDependsOn, Weight: 0.9, Provenance: []string{"filing-7"}}
	locatedIn := &types.Relationship{SourceID: "b", TargetID: "x", Type: types.RelLocatedIn, Weight: 1.0}
	affects := &types.Relationship{SourceID: "r", TargetID: "x", Type: types.RelAffects, Weight: 0.95}

	long := types.ReasoningPath{Hops: []types.Hop{
		{From: a, To: b, Direction: types.DirectionOutgoing, Relationship: dependsOn},
		{From: b, To: x, Direction: types.DirectionOutgoing, Relationship: locatedIn},
		{From: x, To: r, Direction: types.DirectionIncoming, Relationship: affects},
	}}
	short := types.ReasoningPath{Hops: long.Hops[:2]}

	ev := BuildEvidence([]types.ReasoningPath{short, long}, 0)
	require.Len(t, ev, 3)
	assert.Equal(t, "CompanyA depends on SupplierB (weight 0.90)", ev[0].Snippet)
	assert.Equal(t, "filing-7", ev[0].SourceID)
	assert.Equal(t, "SupplierB is located in CountryX", ev[1].Snippet)
	assert.Equal(t, "graph", ev[1].SourceID)
	assert.Equal(t, "RiskEvent affects CountryX (weight 0.95)", ev[2].Snippet)
	assert.Equal(t, affects.Key().String(), ev[2].Locator)

	assert.Len(t, BuildEvidence([]types.ReasoningPath{long}, 2), 2)
}

func TestRelationVerb(t *testing.T) {
	assert.Equal(t, "supplies", RelationVerb(types.RelSuppliesTo))
	assert.Equal(t, "partners with", RelationVerb("PARTNERS_WITH"))
}

func TestTemplateNarrative(t *testing.T) {
	text := TemplateNarrative([]types.Evidence{{Snippet: "A depends on B"}, {Snippet: "B is located in C"}})
	assert.Equal(t, "A depends on B [1]. B is located in C [2].", text)
	assert.Empty(t, TemplateNarrative(nil))
}
