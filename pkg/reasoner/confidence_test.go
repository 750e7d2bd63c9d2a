package reasoner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// chain builds a path of len(weights) outgoing hops with distinct entities.
func chain(prefix string, weights ...float64) types.ReasoningPath {
	var p types.ReasoningPath
	prev := &types.CanonicalEntity{ID: prefix + "0", CanonicalName: prefix + "0"}
	for i, w := range weights {
		next := &types.CanonicalEntity{ID: fmt.Sprintf("%s%d", prefix, i+1), CanonicalName: fmt.Sprintf("%s%d", prefix, i+1)}
		p.Hops = append(p.Hops, types.Hop{
			From:         prev,
			To:           next,
			Direction:    types.DirectionOutgoing,
			Relationship: &types.Relationship{SourceID: prev.ID, TargetID: next.ID, Type: types.RelDependsOn, Weight: w},
		})
		prev = next
	}
	return p
}

func TestScoreConfidence(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		c := ScoreConfidence(nil, 0.85)
		assert.Zero(t, c.Score)
		assert.Zero(t, c.PathCount)
	})

	t.Run("single hop is the edge weight", func(t *testing.T) {
		c := ScoreConfidence([]types.ReasoningPath{chain("a", 0.6)}, 0.85)
		assert.InDelta(t, 0.6, c.Score, 1e-9)
	})

	t.Run("corroboration raises the score", func(t *testing.T) {
		one := ScoreConfidence([]types.ReasoningPath{chain("a", 0.6)}, 0.85)
		two := ScoreConfidence([]types.ReasoningPath{chain("a", 0.6), chain("b", 0.5)}, 0.85)
		assert.InDelta(t, 0.8, two.Score, 1e-9)
		assert.Greater(t, two.Score, one.Score)
	})

	t.Run("stronger edges raise the score", func(t *testing.T) {
		weak := ScoreConfidence([]types.ReasoningPath{chain("a", 0.5, 0.5)}, 0.85)
		strong := ScoreConfidence([]types.ReasoningPath{chain("a", 0.9, 0.9)}, 0.85)
		assert.Greater(t, strong.Score, weak.Score)
	})

	t.Run("longer paths lower the score", func(t *testing.T) {
		short := ScoreConfidence([]types.ReasoningPath{chain("a", 0.9, 0.9)}, 0.85)
		long := ScoreConfidence([]types.ReasoningPath{chain("a", 0.9, 0.9, 0.9)}, 0.85)
		assert.Less(t, long.Score, short.Score)
	})

	t.Run("duplicate paths count once", func(t *testing.T) {
		p := chain("a", 0.6)
		c := ScoreConfidence([]types.ReasoningPath{p, p}, 0.85)
		assert.InDelta(t, 0.6, c.Score, 1e-9)
		assert.Equal(t, 1, c.PathCount)
	})

	t.Run("weights above one are capped", func(t *testing.T) {
		c := ScoreConfidence([]types.ReasoningPath{chain("a", 3)}, 0.85)
		assert.Equal(t, 1.0, c.Score)
		assert.Equal(t, 1.0, c.AvgEdgeWeight)
	})

	t.Run("invalid decay falls back to default", func(t *testing.T) {
		a := ScoreConfidence([]types.ReasoningPath{chain("a", 0.9, 0.9)}, 0)
		b := ScoreConfidence([]types.ReasoningPath{chain("a", 0.9, 0.9)}, DefaultLengthDecay)
		assert.Equal(t, b.Score, a.Score)
	})
}
