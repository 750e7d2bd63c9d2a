package types

import (
	"sort"
	"strings"
)

// Direction is the orientation in which a hop traversed its relationship.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionAny      Direction = "any"
)

// Hop is one relationship traversal step inside a ReasoningPath. From and To
// follow the walk order; Relationship keeps the stored edge orientation.
type Hop struct {
	From         *CanonicalEntity `json:"from"`
	Relationship *Relationship    `json:"relationship"`
	To           *CanonicalEntity `json:"to"`
	Direction    Direction        `json:"direction"`
}

// ReasoningPath is an ordered sequence of hops linking entities. Paths are
// built per query and never persisted.
type ReasoningPath struct {
	Hops []Hop `json:"hops"`
}

// Length returns the number of hops.
func (p *ReasoningPath) Length() int {
	return len(p.Hops)
}

// Start returns the first entity of the path.
func (p *ReasoningPath) Start() *CanonicalEntity {
	if len(p.Hops) == 0 {
		return nil
	}
	return p.Hops[0].From
}

// End returns the last entity of the path.
func (p *ReasoningPath) End() *CanonicalEntity {
	if len(p.Hops) == 0 {
		return nil
	}
	return p.Hops[len(p.Hops)-1].To
}

// TotalWeight sums the relationship weights along the path.
func (p *ReasoningPath) TotalWeight() float64 {
	var sum float64
	for _, h := range p.Hops {
		if h.Relationship != nil {
			sum += h.Relationship.Weight
		}
	}
	return sum
}

// AverageWeight is TotalWeight divided by the hop count.
func (p *ReasoningPath) AverageWeight() float64 {
	if len(p.Hops) == 0 {
		return 0
	}
	return p.TotalWeight() / float64(len(p.Hops))
}

// EntityIDs returns the ids of all entities on the path in walk order.
func (p *ReasoningPath) EntityIDs() []string {
	if len(p.Hops) == 0 {
		return nil
	}
	ids := []string{p.Hops[0].From.ID}
	for _, h := range p.Hops {
		ids = append(ids, h.To.ID)
	}
	return ids
}

// Key identifies the path by its edge sequence. Two paths with the same key
// corroborate nothing new.
func (p *ReasoningPath) Key() string {
	parts := make([]string, 0, len(p.Hops))
	for _, h := range p.Hops {
		parts = append(parts, h.Relationship.Key().String())
	}
	return strings.Join(parts, "|")
}

// String renders the path as "A -[TYPE]-> B <-[TYPE]- C".
func (p *ReasoningPath) String() string {
	if len(p.Hops) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.Hops[0].From.CanonicalName)
	for _, h := range p.Hops {
		if h.Direction == DirectionIncoming {
			b.WriteString(" <-[" + string(h.Relationship.Type) + "]- ")
		} else {
			b.WriteString(" -[" + string(h.Relationship.Type) + "]-> ")
		}
		b.WriteString(h.To.CanonicalName)
	}
	return b.String()
}

// RankPaths sorts paths in place: fewer hops first, then higher total
// weight, then path key so the order is reproducible.
func RankPaths(paths []ReasoningPath) {
	sort.SliceStable(paths, func(i, j int) bool {
		pi, pj := &paths[i], &paths[j]
		if pi.Length() != pj.Length() {
			return pi.Length() < pj.Length()
		}
		wi, wj := pi.TotalWeight(), pj.TotalWeight()
		if wi != wj {
			return wi > wj
		}
		return pi.Key() < pj.Key()
	})
}
