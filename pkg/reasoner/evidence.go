package reasoner

import (
	"fmt"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// DefaultMaxEvidence caps the numbered evidence list handed to the narrative.
const DefaultMaxEvidence = 20

var relationVerbs = map[types.RelationType]string{
	types.RelDependsOn:    "depends on",
	types.RelCompetesWith: "competes with",
	types.RelImpacts:      "impacts",
	types.RelLocatedIn:    "is located in",
	types.RelAffects:      "affects",
	types.RelOperatesIn:   "operates in",
	types.RelSuppliesTo:   "supplies",
	types.RelHasMetric:    "has metric",
	types.RelBelongsTo:    "belongs to",
}

// RelationVerb renders a relationship type as an English verb phrase.
func RelationVerb(t types.RelationType) string {
	if v, ok := relationVerbs[t]; ok {
		return v
	}
	return strings.ToLower(strings.ReplaceAll(string(t), "_", " "))
}

// BuildEvidence turns the relationships on paths into numbered evidence, one
// item per distinct relationship in path order. Snippets follow the stored
// orientation of the edge, not the direction it was walked.
func BuildEvidence(paths []types.ReasoningPath, limit int) []types.Evidence {
	if limit <= 0 {
		limit = DefaultMaxEvidence
	}
	seen := make(map[types.RelationshipKey]struct{})
	var out []types.Evidence
	for i := range paths {
		for _, h := range paths[i].Hops {
			rel := h.Relationship
			if rel == nil {
				continue
			}
			key := rel.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			src, dst := h.From, h.To
			if rel.SourceID != src.ID {
				src, dst = dst, src
			}
			out = append(out, types.Evidence{
				Snippet:  Snippet(src.CanonicalName, rel, dst.CanonicalName),
				SourceID: evidenceSource(rel),
				Locator:  key.String(),
				Weight:   rel.Weight,
			})
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// Snippet describes one relationship, e.g. "CompanyA depends on SupplierB (weight 0.90)".
// Full-strength edges carry no weight suffix.
func Snippet(source string, rel *types.Relationship, target string) string {
	s := fmt.Sprintf("%s %s %s", source, RelationVerb(rel.Type), target)
	if rel.Weight < 1 {
		s += fmt.Sprintf(" (weight %.2f)", rel.Weight)
	}
	return s
}

func evidenceSource(rel *types.Relationship) string {
	if len(rel.Provenance) > 0 && rel.Provenance[0] != "" {
		return rel.Provenance[0]
	}
	return "graph"
}

// TemplateNarrative writes one cited sentence per evidence item. It is used
// whenever the model narrative is unavailable or strays from the paths.
func TemplateNarrative(evidence []types.Evidence) string {
	sentences := make([]string, 0, len(evidence))
	for i, ev := range evidence {
		sentences = append(sentences, fmt.Sprintf("%s [%d].", ev.Snippet, i+1))
	}
	return strings.Join(sentences, " ")
}
