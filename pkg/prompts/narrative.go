package prompts

import (
	"fmt"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/nlp"
)

// narrativePrompt drafts an answer from numbered evidence only.
func narrativePrompt(context map[string]any) (nlp.Prompt, error) {
	question, err := requireString(context, "question")
	if err != nil {
		return nlp.Prompt{}, err
	}
	evidence, _ := context["evidence"].([]EvidenceRow)
	if len(evidence) == 0 {
		return nlp.Prompt{}, fmt.Errorf("narrative prompt needs evidence")
	}
	paths, _ := context["paths"].([]PathRow)

	evidenceTSV, err := ToPromptTSV(evidence)
	if err != nil {
		return nlp.Prompt{}, fmt.Errorf("failed to marshal evidence: %w", err)
	}
	pathsTSV, err := ToPromptTSV(paths)
	if err != nil {
		return nlp.Prompt{}, fmt.Errorf("failed to marshal paths: %w", err)
	}

	sys := `You are a financial analyst explaining multi-hop reasoning over knowledge graph data.
Write 2 to 5 sentences that answer the question using ONLY the numbered evidence.
Every sentence must end with the citation of the evidence it relies on, written as [n].
Explain the chain step by step, for example "A depends on B [1]. B is located in C [2]."
Do not mention companies, places or events that are not in the evidence.
If the evidence does not answer the question, say so in one sentence.`

	user := fmt.Sprintf(`<QUESTION>
%s
</QUESTION>
<REASONING_TYPE>
%s
</REASONING_TYPE>

Note: EVIDENCE and PATHS are provided in TSV (tab-separated values) format.
<EVIDENCE>
%s
</EVIDENCE>
<PATHS>
%s
</PATHS>`, question, optionalString(context, "reasoning_type"), strings.TrimSpace(evidenceTSV), strings.TrimSpace(pathsTSV))

	return nlp.Prompt{System: sys, User: user}, nil
}
