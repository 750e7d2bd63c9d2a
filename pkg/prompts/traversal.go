package prompts

import (
	"fmt"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/nlp"
)

// traversalPrompt asks for a bounded traversal spec as JSON. The model
// never writes a query; it only fills in parameters that are validated
// before anything reaches the store.
func traversalPrompt(context map[string]any) (nlp.Prompt, error) {
	question, err := requireString(context, "question")
	if err != nil {
		return nlp.Prompt{}, err
	}
	entities, _ := context["entities"].([]EntityRow)
	relationTypes, _ := context["relation_types"].([]string)
	reasoningTypes, _ := context["reasoning_types"].([]string)
	maxHops, _ := context["max_hops"].(int)
	maxPaths, _ := context["max_paths"].(int)
	if len(relationTypes) == 0 || len(reasoningTypes) == 0 || maxHops < 1 || maxPaths < 1 {
		return nlp.Prompt{}, fmt.Errorf("traversal prompt needs relation_types, reasoning_types, max_hops and max_paths")
	}

	entitiesTSV, err := ToPromptTSV(entities)
	if err != nil {
		return nlp.Prompt{}, fmt.Errorf("failed to marshal entities: %w", err)
	}
	if entitiesTSV == "" {
		entitiesTSV = "(none resolved)"
	}

	sys := fmt.Sprintf(`You plan multi-hop traversals over a knowledge graph of companies, countries,
industries, indicators and events.
Output a single JSON object with these fields:
- "reasoning_type": one of %s
- "start": list of entity names to start from, taken from ENTITIES
- "targets": optional list of entity names the path should end at, taken from ENTITIES
- "relation_types": relationship types allowed on the path, a subset of %s
- "max_hops": integer from 1 to %d
- "limit": integer from 1 to %d
- "direction": "outgoing", "incoming" or "any"

Rules:
- Use only entity names and relationship types listed here. Anything else is rejected.
- Prefer "any" direction when influence can flow both ways, for example an event AFFECTS a country that a supplier is LOCATED_IN.
- Do not write Cypher or any other query text.

Example:
Q: "How does Taiwan tension affect Nvidia?"
{"reasoning_type": "risk_chain", "start": ["NVIDIA"], "targets": ["Taiwan Strait Tension"], "relation_types": ["DEPENDS_ON", "LOCATED_IN", "AFFECTS"], "max_hops": 3, "limit": 10, "direction": "any"}`,
		strings.Join(reasoningTypes, ", "), strings.Join(relationTypes, ", "), maxHops, maxPaths)

	var user strings.Builder
	fmt.Fprintf(&user, `<QUESTION>
%s
</QUESTION>

Note: ENTITIES is provided in TSV (tab-separated values) format.
<ENTITIES>
%s
</ENTITIES>
`, question, strings.TrimSpace(entitiesTSV))
	if rejection := optionalString(context, "rejection"); rejection != "" {
		fmt.Fprintf(&user, `
Your previous plan was rejected: %s
Fix these problems and answer again.
`, rejection)
	}

	return nlp.Prompt{System: sys, User: user.String()}, nil
}
