// Package router decides whether a question is answered from the graph or
// needs live search.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/soundprediction/groundgraph/pkg/metrics"
	"github.com/soundprediction/groundgraph/pkg/nlp"
	"github.com/soundprediction/groundgraph/pkg/prompts"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// Route is the outcome of classification.
type Route string

const (
	RouteGraph Route = "GRAPH"
	RouteLive  Route = "LIVE_SEARCH"
)

// Stage says which step of classification produced a decision.
type Stage string

const (
	StageKeyword Stage = "keyword"
	StageModel   Stage = "model"
	StageDefault Stage = "default"
)

// DefaultTimeout bounds the classification completion.
const DefaultTimeout = 10 * time.Second

// DefaultLiveKeywords are recency markers that force live search.
var DefaultLiveKeywords = []string{
	"latest", "news", "current", "today", "now", "recent", "breaking",
	"update", "announcement", "market reaction", "stock price", "trend",
	"this week", "this month", "real-time", "real time",
	"최근", "뉴스", "현재", "오늘", "지금", "시장 반응", "주가", "동향",
	"트렌드", "발표", "공시", "보도", "언론", "이번주", "이번달", "최신",
}

// Decision is a routing outcome with the stage that made it.
type Decision struct {
	Route  Route
	Stage  Stage
	Reason string
}

// Options configures a Router.
type Options struct {
	// Keywords replaces DefaultLiveKeywords when non-empty.
	Keywords []string
	Timeout  time.Duration
	Prompts  *prompts.Library
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Router classifies questions. It keeps no state between calls, so the
// same question and keyword list always take the same path.
type Router struct {
	client   nlp.Client
	keywords []string
	timeout  time.Duration
	prompts  *prompts.Library
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a router. A nil client routes everything without a keyword
// hit to the graph.
func New(client nlp.Client, opts Options) *Router {
	keywords := opts.Keywords
	if len(keywords) == 0 {
		keywords = DefaultLiveKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			normalized = append(normalized, k)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.NewLibrary()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		client:   client,
		keywords: normalized,
		timeout:  opts.Timeout,
		prompts:  opts.Prompts,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Classify routes question. It never fails: any problem with the model
// call falls back to the graph route, which is auditable.
func (r *Router) Classify(ctx context.Context, question string) Decision {
	start := time.Now()
	defer r.metrics.ObserveStage("route", start)

	if kw, ok := r.MatchKeyword(question); ok {
		return r.decide(Decision{Route: RouteLive, Stage: StageKeyword, Reason: fmt.Sprintf("keyword %q", kw)})
	}
	if r.client == nil {
		return r.decide(Decision{Route: RouteGraph, Stage: StageDefault, Reason: "no completion backend"})
	}

	prompt, err := r.prompts.Route.Call(map[string]any{"question": question, "logger": r.logger})
	if err != nil {
		return r.decide(Decision{Route: RouteGraph, Stage: StageDefault, Reason: err.Error()})
	}

	callCtx, cancel := context.WithTimeout(nlp.WithUsage(ctx, types.UsageRoute), r.timeout)
	defer cancel()

	label, err := nlp.Complete(callCtx, r.client, prompt, 0, nlp.LabelOutput(string(RouteGraph), string(RouteLive)))
	if err != nil {
		r.logger.Warn("Route classification failed, defaulting to graph", "error", err)
		return r.decide(Decision{Route: RouteGraph, Stage: StageDefault, Reason: err.Error()})
	}
	return r.decide(Decision{Route: Route(label), Stage: StageModel, Reason: "model label"})
}

func (r *Router) decide(d Decision) Decision {
	r.logger.Debug("Routed question", "route", d.Route, "stage", d.Stage, "reason", d.Reason)
	return d
}

// MatchKeyword returns the first live keyword found in question. Matches
// start on a word boundary. Latin keywords must also end on one; Hangul
// keywords may be followed by a particle.
func (r *Router) MatchKeyword(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, kw := range r.keywords {
		if containsKeyword(q, kw) {
			return kw, true
		}
	}
	return "", false
}

func containsKeyword(text, kw string) bool {
	last, _ := utf8.DecodeLastRuneInString(kw)
	strictEnd := last < utf8.RuneSelf
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], kw)
		if i < 0 {
			return false
		}
		begin := offset + i
		end := begin + len(kw)

		leftOK := true
		if begin > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:begin])
			leftOK = !isWordRune(prev)
		}
		rightOK := true
		if strictEnd && end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			rightOK = !isWordRune(next)
		}
		if leftOK && rightOK {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[begin:])
		offset = begin + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
