package prompts

import (
	"fmt"

	"github.com/soundprediction/groundgraph/pkg/nlp"
)

// routePrompt asks for a single routing label.
func routePrompt(context map[string]any) (nlp.Prompt, error) {
	question, err := requireString(context, "question")
	if err != nil {
		return nlp.Prompt{}, err
	}

	sys := `You route questions for a financial knowledge graph assistant.
Answer GRAPH when the question asks about stable relationships between named entities:
dependencies, suppliers, locations, competitors, exposure to risks or indicators.
Answer LIVE_SEARCH when the answer depends on fresh information such as prices,
news, announcements or anything that changes day to day.
Reply with exactly one word: GRAPH or LIVE_SEARCH.`

	user := fmt.Sprintf(`<QUESTION>
%s
</QUESTION>`, question)

	return nlp.Prompt{System: sys, User: user}, nil
}
