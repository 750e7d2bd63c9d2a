// Package report renders a validated answer and its evidence into a
// fixed-section report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/groundgraph/pkg/citation"
	"github.com/soundprediction/groundgraph/pkg/metrics"
	"github.com/soundprediction/groundgraph/pkg/nlp"
	"github.com/soundprediction/groundgraph/pkg/prompts"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/soundprediction/groundgraph/pkg/utils"
)

// Report sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// DefaultTimeout bounds the rendering completion.
const DefaultTimeout = 30 * time.Second

const renderTemperature = 0.1

// Finding is one claim with the evidence numbers that back it.
type Finding struct {
	Claim     string `json:"claim"`
	Citations []int  `json:"citations"`
}

// Report is the structured final answer.
type Report struct {
	Question    string           `json:"question"`
	Summary     string           `json:"summary"`
	Findings    []Finding        `json:"findings"`
	Evidence    []types.Evidence `json:"evidence"`
	Verdict     string           `json:"verdict"`
	Confidence  float64          `json:"confidence"`
	Source      string           `json:"source"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Options configures a Synthesizer.
type Options struct {
	Timeout time.Duration
	// OverlapThreshold is the keyword overlap a finding needs with its evidence.
	OverlapThreshold float64
	Prompts          *prompts.Library
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Synthesizer renders reports. The completion model may only restructure
// the validated answer; findings it cannot tie to the evidence are dropped.
type Synthesizer struct {
	client nlp.Client
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a synthesizer. A nil client always renders the fallback.
func New(client nlp.Client, opts Options) *Synthesizer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.OverlapThreshold <= 0 {
		opts.OverlapThreshold = citation.DefaultOverlapThreshold
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.NewLibrary()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synthesizer{client: client, opts: opts, logger: opts.Logger, now: time.Now}
}

type modelReport struct {
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings"`
	Verdict  string    `json:"verdict"`
}

// Render builds the report for a validated answer. It never fails: any
// problem with the completion falls back to a report built from the answer.
func (s *Synthesizer) Render(ctx context.Context, question, answer string, evidence []types.Evidence, confidence float64) *Report {
	start := time.Now()
	defer s.opts.Metrics.ObserveStage("render", start)

	fallback := s.Fallback(question, answer, evidence, confidence)
	if s.client == nil || answer == citation.NotFoundMarker || len(evidence) == 0 {
		return fallback
	}

	rows := make([]prompts.EvidenceRow, len(evidence))
	for i, ev := range evidence {
		rows[i] = prompts.EvidenceRow{Index: i + 1, Snippet: ev.Snippet, Source: ev.SourceID}
	}
	prompt, err := s.opts.Prompts.Report.Call(map[string]any{
		"question":   question,
		"answer":     answer,
		"evidence":   rows,
		"confidence": confidence,
		"logger":     s.logger,
	})
	if err != nil {
		s.logger.Warn("Report prompt failed, using fallback", "error", err)
		return fallback
	}

	callCtx, cancel := context.WithTimeout(nlp.WithUsage(ctx, types.UsageReport), s.opts.Timeout)
	defer cancel()
	raw, err := nlp.Complete(callCtx, s.client, prompt, renderTemperature, nlp.JSONOutput())
	if err != nil {
		s.logger.Warn("Report completion failed, using fallback", "error", err)
		return fallback
	}

	var mr modelReport
	if err := json.Unmarshal([]byte(raw), &mr); err != nil {
		s.logger.Warn("Report output malformed, using fallback", "error", err)
		return fallback
	}

	findings := s.groundFindings(mr.Findings, evidence)
	if len(findings) == 0 {
		s.logger.Warn("No grounded findings in report output, using fallback")
		return fallback
	}

	rep := *fallback
	rep.Findings = findings
	rep.Source = SourceModel
	grounding := answer + " " + snippets(evidence)
	if summary := strings.TrimSpace(mr.Summary); summary != "" && s.grounded(summary, grounding) {
		rep.Summary = summary
	}
	if verdict := strings.TrimSpace(mr.Verdict); verdict != "" && s.grounded(verdict, grounding) {
		rep.Verdict = verdict
	}
	return &rep
}

// groundFindings keeps findings whose citations are all in range and keeps
// only the citations whose evidence overlaps the claim.
func (s *Synthesizer) groundFindings(in []Finding, evidence []types.Evidence) []Finding {
	var out []Finding
	for _, f := range in {
		claim := strings.TrimSpace(f.Claim)
		if claim == "" || len(f.Citations) == 0 {
			continue
		}
		var cites []int
		inRange := true
		for _, idx := range f.Citations {
			if idx < 1 || idx > len(evidence) {
				inRange = false
				break
			}
			if citation.Overlap(claim, evidence[idx-1].Snippet) >= s.opts.OverlapThreshold && !containsInt(cites, idx) {
				cites = append(cites, idx)
			}
		}
		if !inRange || len(cites) == 0 {
			s.logger.Debug("Dropped ungrounded finding", "claim", claim, "citations", f.Citations)
			continue
		}
		out = append(out, Finding{Claim: claim, Citations: cites})
	}
	return out
}

// grounded reports whether every sentence of text overlaps source.
func (s *Synthesizer) grounded(text, source string) bool {
	for _, c := range citation.ExtractClaims(text) {
		if utils.KeywordOverlap(c.Text, source) < s.opts.OverlapThreshold {
			return false
		}
	}
	return true
}

// Fallback builds a report directly from the validated answer: each cited
// sentence becomes a finding.
func (s *Synthesizer) Fallback(question, answer string, evidence []types.Evidence, confidence float64) *Report {
	rep := &Report{
		Question:    question,
		Evidence:    evidence,
		Confidence:  confidence,
		Source:      SourceFallback,
		GeneratedAt: s.now().UTC(),
	}
	if answer == citation.NotFoundMarker || strings.TrimSpace(answer) == "" {
		rep.Summary = citation.NotFoundMarker
		rep.Evidence = nil
		rep.Verdict = "Insufficient grounded information."
		return rep
	}

	claims := citation.ExtractClaims(answer)
	var summary []string
	for _, c := range claims {
		if len(summary) < 2 {
			summary = append(summary, c.Text)
		}
		var cites []int
		for _, idx := range c.Citations {
			if idx >= 1 && idx <= len(evidence) && !containsInt(cites, idx) {
				cites = append(cites, idx)
			}
		}
		if len(cites) > 0 {
			rep.Findings = append(rep.Findings, Finding{Claim: c.Text, Citations: cites})
		}
	}
	rep.Summary = strings.Join(summary, " ")
	rep.Verdict = verdict(confidence, len(evidence))
	return rep
}

func verdict(confidence float64, evidenceCount int) string {
	strength := "Weakly supported"
	switch {
	case confidence >= 0.85:
		strength = "Strongly supported"
	case confidence >= 0.7:
		strength = "Supported"
	}
	return fmt.Sprintf("%s by %d evidence item(s) (confidence %.2f).", strength, evidenceCount, confidence)
}

func snippets(evidence []types.Evidence) string {
	parts := make([]string, len(evidence))
	for i, ev := range evidence {
		parts[i] = ev.Snippet
	}
	return strings.Join(parts, " ")
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
