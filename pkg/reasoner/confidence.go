package reasoner

import (
	"math"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// DefaultLengthDecay discounts a path's strength per hop beyond the first.
const DefaultLengthDecay = 0.85

// Confidence is the corroboration score of a set of paths together with
// the aggregates it was computed from.
type Confidence struct {
	Score         float64 `json:"score"`
	PathCount     int     `json:"path_count"`
	AvgEdgeWeight float64 `json:"avg_edge_weight"`
	AvgPathLength float64 `json:"avg_path_length"`
}

// ScoreConfidence combines independent paths with a noisy-OR. Each distinct
// path contributes avgWeight * decay^(hops-1), with weights capped at 1.
// Adding a path never lowers the score. Paths with the same edge sequence
// count once.
func ScoreConfidence(paths []types.ReasoningPath, decay float64) Confidence {
	if decay <= 0 || decay > 1 {
		decay = DefaultLengthDecay
	}

	var c Confidence
	var weights float64
	var edges int
	miss := 1.0
	seen := make(map[string]struct{}, len(paths))
	for i := range paths {
		p := &paths[i]
		if p.Length() == 0 {
			continue
		}
		key := p.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		c.PathCount++
		edges += p.Length()
		for _, h := range p.Hops {
			weights += clamp01(h.Relationship.Weight)
		}
		strength := clamp01(p.AverageWeight()) * math.Pow(decay, float64(p.Length()-1))
		miss *= 1 - clamp01(strength)
	}
	if c.PathCount == 0 {
		return c
	}
	c.Score = clamp01(1 - miss)
	c.AvgEdgeWeight = weights / float64(edges)
	c.AvgPathLength = float64(edges) / float64(c.PathCount)
	return c
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
