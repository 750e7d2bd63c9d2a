package prompts

import (
	"fmt"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/nlp"
)

// reportPrompt restructures a validated answer into report sections. It is
// given nothing but the answer and its evidence.
func reportPrompt(context map[string]any) (nlp.Prompt, error) {
	question, err := requireString(context, "question")
	if err != nil {
		return nlp.Prompt{}, err
	}
	answer, err := requireString(context, "answer")
	if err != nil {
		return nlp.Prompt{}, err
	}
	evidence, _ := context["evidence"].([]EvidenceRow)
	confidence, _ := context["confidence"].(float64)

	evidenceTSV, err := ToPromptTSV(evidence)
	if err != nil {
		return nlp.Prompt{}, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	sys := `You format validated analysis into a fixed report. You restructure; you never add facts.
Output a single JSON object:
{
  "summary": "2-3 sentence executive summary",
  "findings": [{"claim": "one sentence", "citations": [1, 2]}],
  "verdict": "one line bottom line"
}
Rules:
- Every finding must be backed by the cited evidence numbers.
- Use only information from ANSWER and EVIDENCE.
- Keep citation numbers exactly as given.`

	user := fmt.Sprintf(`<QUESTION>
%s
</QUESTION>
<ANSWER confidence="%.2f">
%s
</ANSWER>

Note: EVIDENCE is provided in TSV (tab-separated values) format.
<EVIDENCE>
%s
</EVIDENCE>`, question, confidence, answer, strings.TrimSpace(evidenceTSV))

	return nlp.Prompt{System: sys, User: user}, nil
}
