package report

import (
	"fmt"
	"strconv"
	"strings"
)

// Markdown renders the report sections.
func (r *Report) Markdown() string {
	var b strings.Builder
	if r.Question != "" {
		fmt.Fprintf(&b, "# %s\n\n", r.Question)
	}

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(r.Summary)
	b.WriteString("\n\n")

	if len(r.Findings) > 0 {
		b.WriteString("## Detailed Findings\n\n")
		for i, f := range r.Findings {
			fmt.Fprintf(&b, "%d. %s %s\n", i+1, f.Claim, citeList(f.Citations))
		}
		b.WriteString("\n")
	}

	if len(r.Evidence) > 0 {
		b.WriteString("## Evidence\n\n")
		b.WriteString("| # | Evidence | Source | Weight |\n")
		b.WriteString("|---|----------|--------|--------|\n")
		for i, ev := range r.Evidence {
			fmt.Fprintf(&b, "| %d | %s | %s | %.2f |\n", i+1, cell(ev.Snippet), cell(ev.SourceID), ev.Weight)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Verdict\n\n")
	b.WriteString(r.Verdict)
	fmt.Fprintf(&b, "\n\n_Confidence: %.2f_\n", r.Confidence)
	return b.String()
}

func citeList(cites []int) string {
	var b strings.Builder
	for _, c := range cites {
		b.WriteString("[" + strconv.Itoa(c) + "]")
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
