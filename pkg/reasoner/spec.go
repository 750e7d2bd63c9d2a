package reasoner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/driver"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// ReasoningType names the kind of inference a traversal supports.
type ReasoningType string

const (
	RiskChain            ReasoningType = "risk_chain"
	InfluencePropagation ReasoningType = "influence_propagation"
	CausalInference      ReasoningType = "causal_inference"
	ImpactAnalysis       ReasoningType = "impact_analysis"
)

// ReasoningTypes lists the accepted reasoning types.
var ReasoningTypes = []ReasoningType{RiskChain, InfluencePropagation, CausalInference, ImpactAnalysis}

// TraversalSpec is the structured plan requested from the model. It holds
// only parameters; it is turned into a driver.PathQuery after validation.
type TraversalSpec struct {
	ReasoningType ReasoningType `json:"reasoning_type"`
	Start         []string      `json:"start"`
	Targets       []string      `json:"targets,omitempty"`
	RelationTypes []string      `json:"relation_types"`
	MaxHops       int           `json:"max_hops"`
	Limit         int           `json:"limit"`
	Direction     string        `json:"direction"`
}

// ParseTraversalSpec decodes a spec from model output that already passed
// the JSON constraint.
func ParseTraversalSpec(raw string) (*TraversalSpec, error) {
	var spec TraversalSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, &types.TraversalSpecInvalidError{Reasons: []string{"malformed spec: " + err.Error()}}
	}
	return &spec, nil
}

// Bounds are the limits a spec is validated against.
type Bounds struct {
	MaxHops       int
	MaxPaths      int
	RelationTypes []types.RelationType
}

// EntityLookup maps an entity name from a spec to a known entity id.
type EntityLookup func(name string) (string, bool)

// Validate checks spec against the allow-list and bounds and returns the
// parameterized query to run. Zero values take the bound; anything out of
// range or unknown is rejected with every problem listed.
func (s *TraversalSpec) Validate(b Bounds, lookup EntityLookup, defaultStart []string) (driver.PathQuery, error) {
	var problems []string

	known := false
	for _, rt := range ReasoningTypes {
		if s.ReasoningType == rt {
			known = true
			break
		}
	}
	if !known {
		problems = append(problems, fmt.Sprintf("unknown reasoning_type %q", s.ReasoningType))
	}

	q := driver.PathQuery{MaxHops: s.MaxHops, Limit: s.Limit}

	switch {
	case s.MaxHops == 0:
		q.MaxHops = b.MaxHops
	case s.MaxHops < 0 || s.MaxHops > b.MaxHops:
		problems = append(problems, fmt.Sprintf("max_hops %d outside [1,%d]", s.MaxHops, b.MaxHops))
	}
	switch {
	case s.Limit == 0:
		q.Limit = b.MaxPaths
	case s.Limit < 0 || s.Limit > b.MaxPaths:
		problems = append(problems, fmt.Sprintf("limit %d outside [1,%d]", s.Limit, b.MaxPaths))
	}

	switch types.Direction(strings.ToLower(strings.TrimSpace(s.Direction))) {
	case "", types.DirectionAny:
		q.Direction = types.DirectionAny
	case types.DirectionOutgoing:
		q.Direction = types.DirectionOutgoing
	case types.DirectionIncoming:
		q.Direction = types.DirectionIncoming
	default:
		problems = append(problems, fmt.Sprintf("unknown direction %q", s.Direction))
	}

	allowed := make(map[types.RelationType]bool, len(b.RelationTypes))
	for _, t := range b.RelationTypes {
		allowed[t] = true
	}
	if len(s.RelationTypes) == 0 {
		q.RelationTypes = append([]types.RelationType(nil), b.RelationTypes...)
	}
	for _, raw := range s.RelationTypes {
		t := types.RelationType(strings.ToUpper(strings.TrimSpace(raw)))
		if !allowed[t] {
			problems = append(problems, fmt.Sprintf("relation type %q is not allowed", raw))
			continue
		}
		q.RelationTypes = appendUnique(q.RelationTypes, t)
	}

	resolve := func(field string, names []string) []string {
		var ids []string
		for _, name := range names {
			id, ok := lookup(name)
			if !ok {
				problems = append(problems, fmt.Sprintf("%s entity %q is not in the graph", field, name))
				continue
			}
			if !containsID(ids, id) {
				ids = append(ids, id)
			}
		}
		return ids
	}
	q.StartIDs = resolve("start", s.Start)
	if len(s.Start) == 0 {
		q.StartIDs = append([]string(nil), defaultStart...)
	}
	q.TargetIDs = resolve("target", s.Targets)

	if len(problems) > 0 {
		return driver.PathQuery{}, &types.TraversalSpecInvalidError{Reasons: problems}
	}
	if err := q.Validate(); err != nil {
		return driver.PathQuery{}, err
	}
	return q, nil
}

func appendUnique(list []types.RelationType, t types.RelationType) []types.RelationType {
	for _, v := range list {
		if v == t {
			return list
		}
	}
	return append(list, t)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
