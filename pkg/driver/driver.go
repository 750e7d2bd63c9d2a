package driver

import (
	"errors"
	"fmt"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// GraphProvider represents the type of graph store
type GraphProvider string

const (
	GraphProviderMemory GraphProvider = "memory"
	GraphProviderNeo4j  GraphProvider = "neo4j"
)

// Hard bounds for path queries. The reasoner applies tighter configured
// bounds; these stop a store from ever running an unbounded expansion.
const (
	MaxQueryHops  = 6
	MaxQueryLimit = 1000
)

// ErrNameConflict is returned when an upsert would give two entity ids the
// same canonical name.
var ErrNameConflict = errors.New("canonical name already belongs to another entity")

// PathQuery is a parameterized, read-only traversal. Every field is data;
// no part of it is spliced into a query as text except MaxHops, which is
// range checked first.
type PathQuery struct {
	StartIDs      []string             `json:"start_ids"`
	TargetIDs     []string             `json:"target_ids,omitempty"`
	RelationTypes []types.RelationType `json:"relation_types,omitempty"`
	MaxHops       int                  `json:"max_hops"`
	Limit         int                  `json:"limit"`
	Direction     types.Direction      `json:"direction"`
}

// Validate checks q against the store's hard bounds.
func (q PathQuery) Validate() error {
	var problems []string
	if len(q.StartIDs) == 0 {
		problems = append(problems, "no start entities")
	}
	if q.MaxHops < 1 || q.MaxHops > MaxQueryHops {
		problems = append(problems, fmt.Sprintf("max_hops %d outside [1,%d]", q.MaxHops, MaxQueryHops))
	}
	if q.Limit < 1 || q.Limit > MaxQueryLimit {
		problems = append(problems, fmt.Sprintf("limit %d outside [1,%d]", q.Limit, MaxQueryLimit))
	}
	switch q.Direction {
	case types.DirectionOutgoing, types.DirectionIncoming, types.DirectionAny:
	default:
		problems = append(problems, fmt.Sprintf("unknown direction %q", q.Direction))
	}
	for _, t := range q.RelationTypes {
		if t == "" || types.SanitizeRelationType(string(t)) != t {
			problems = append(problems, fmt.Sprintf("malformed relation type %q", t))
		}
	}
	if len(problems) > 0 {
		return &types.TraversalSpecInvalidError{Reasons: problems}
	}
	return nil
}

func (q PathQuery) allowsType(t types.RelationType) bool {
	if len(q.RelationTypes) == 0 {
		return true
	}
	for _, allowed := range q.RelationTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

func (q PathQuery) relationTypeStrings() []string {
	out := make([]string, len(q.RelationTypes))
	for i, t := range q.RelationTypes {
		out[i] = string(t)
	}
	return out
}

// IsNotFound reports whether err is a lookup miss rather than a store fault.
func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrEntityNotFound) || errors.Is(err, types.ErrRelationshipNotFound)
}

// isCallerError reports errors that say nothing about store health.
func isCallerError(err error) bool {
	if IsNotFound(err) || errors.Is(err, ErrNameConflict) {
		return true
	}
	if errors.Is(err, types.ErrEmptyID) || errors.Is(err, types.ErrEmptyName) ||
		errors.Is(err, types.ErrEmptyRelationType) || errors.Is(err, types.ErrInvalidProperty) {
		return true
	}
	return errors.Is(err, &types.TraversalSpecInvalidError{})
}
