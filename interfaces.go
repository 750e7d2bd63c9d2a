package groundgraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// LiveResult is one hit from the live-search collaborator.
type LiveResult struct {
	Snippet   string `json:"snippet"`
	SourceURL string `json:"source_url"`
}

// LiveSearcher is the live-search collaborator. It is consulted for
// questions routed to live search and, at most once, when the graph path
// falls back.
type LiveSearcher interface {
	Search(ctx context.Context, question string) ([]LiveResult, error)
}

// LiveSearcherFunc adapts a function to LiveSearcher.
type LiveSearcherFunc func(ctx context.Context, question string) ([]LiveResult, error)

// Search calls f.
func (f LiveSearcherFunc) Search(ctx context.Context, question string) ([]LiveResult, error) {
	return f(ctx, question)
}

// liveEvidence numbers live results the same way graph evidence is numbered.
func liveEvidence(results []LiveResult) []types.Evidence {
	out := make([]types.Evidence, 0, len(results))
	for _, r := range results {
		snippet := strings.TrimSpace(r.Snippet)
		if snippet == "" {
			continue
		}
		out = append(out, types.Evidence{Snippet: snippet, SourceID: r.SourceURL, Locator: r.SourceURL, Weight: 1})
	}
	return out
}

// liveText lists evidence with inline markers. The text is never rewritten
// by a model, so every sentence cites exactly the snippet it repeats.
func liveText(evidence []types.Evidence) string {
	lines := make([]string, len(evidence))
	for i, e := range evidence {
		lines[i] = fmt.Sprintf("- %s [%d]", strings.TrimRight(e.Snippet, " "), i+1)
	}
	return strings.Join(lines, "\n")
}
