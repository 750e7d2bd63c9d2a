// Package reasoner answers questions by walking bounded paths through the
// graph. A completion model plans the traversal as a TraversalSpec, the spec
// is validated against an allow-list, and only then is a parameterized
// PathQuery sent to the store.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/groundgraph/pkg/driver"
	"github.com/soundprediction/groundgraph/pkg/metrics"
	"github.com/soundprediction/groundgraph/pkg/nlp"
	"github.com/soundprediction/groundgraph/pkg/prompts"
	"github.com/soundprediction/groundgraph/pkg/resolver"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// Status is the outcome of Reason.
type Status string

const (
	StatusOK          Status = "OK"
	StatusNoPathFound Status = "NO_PATH_FOUND"
)

// Reasons attached to a NoPathFound result.
const (
	ReasonNoEntities  = "no_entities"
	ReasonSpecInvalid = "traversal_spec_invalid"
	ReasonNoPaths     = "no_paths"
	ReasonTimeout     = "timeout"
	ReasonQueryFailed = "query_failed"
)

// Narrative sources.
const (
	NarrativeModel    = "model"
	NarrativeTemplate = "template"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxHops          = 3
	DefaultMaxPaths         = 100
	DefaultSpecRetries      = 1
	DefaultSpecTimeout      = 20 * time.Second
	DefaultQueryTimeout     = 15 * time.Second
	DefaultNarrativeTimeout = 30 * time.Second

	specTemperature      = 0.1
	narrativeTemperature = 0.2
)

// Options configures a Reasoner.
type Options struct {
	MaxHops     int
	MaxPaths    int
	MaxEvidence int
	LengthDecay float64
	// SpecRetries is how many times a rejected spec is sent back for repair.
	SpecRetries      int
	RelationTypes    []types.RelationType
	SpecTimeout      time.Duration
	QueryTimeout     time.Duration
	NarrativeTimeout time.Duration
	Prompts          *prompts.Library
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Store is what the reasoner reads from the graph.
type Store interface {
	driver.PathFinder
	driver.EntityStore
}

// Result is the outcome of one Reason call.
type Result struct {
	Status          Status                   `json:"status"`
	Reason          string                   `json:"reason,omitempty"`
	Question        string                   `json:"question"`
	Entities        []*types.CanonicalEntity `json:"entities"`
	Spec            *TraversalSpec           `json:"spec,omitempty"`
	Query           *driver.PathQuery        `json:"query,omitempty"`
	Paths           []types.ReasoningPath    `json:"paths,omitempty"`
	Evidence        []types.Evidence         `json:"evidence,omitempty"`
	Narrative       string                   `json:"narrative,omitempty"`
	NarrativeSource string                   `json:"narrative_source,omitempty"`
	Confidence      Confidence               `json:"confidence"`
	SpecAttempts    int                      `json:"spec_attempts"`
	SpecErrors      []string                 `json:"spec_errors,omitempty"`
}

// Found reports whether at least one path backs the result.
func (r *Result) Found() bool {
	return r != nil && r.Status == StatusOK
}

// Reasoner plans and runs multi-hop traversals.
type Reasoner struct {
	resolver *resolver.Resolver
	store    Store
	client   nlp.Client
	opts     Options
	logger   *slog.Logger
}

// New creates a reasoner. A nil client plans a default traversal between
// the mentioned entities and narrates from a template.
func New(res *resolver.Resolver, store Store, client nlp.Client, opts Options) *Reasoner {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.MaxHops > driver.MaxQueryHops {
		opts.MaxHops = driver.MaxQueryHops
	}
	if opts.MaxPaths <= 0 {
		opts.MaxPaths = DefaultMaxPaths
	}
	if opts.MaxPaths > driver.MaxQueryLimit {
		opts.MaxPaths = driver.MaxQueryLimit
	}
	if opts.MaxEvidence <= 0 {
		opts.MaxEvidence = DefaultMaxEvidence
	}
	if opts.LengthDecay <= 0 || opts.LengthDecay > 1 {
		opts.LengthDecay = DefaultLengthDecay
	}
	if opts.SpecRetries < 0 {
		opts.SpecRetries = 0
	}
	if len(opts.RelationTypes) == 0 {
		opts.RelationTypes = types.DefaultRelationTypes
	}
	if opts.SpecTimeout <= 0 {
		opts.SpecTimeout = DefaultSpecTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.NarrativeTimeout <= 0 {
		opts.NarrativeTimeout = DefaultNarrativeTimeout
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.NewLibrary()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reasoner{resolver: res, store: store, client: client, opts: opts, logger: opts.Logger}
}

// Reason answers question from the graph. maxHops tightens the configured
// bound for this call when positive. A question the graph cannot answer is
// a NoPathFound result, not an error; errors are reserved for collaborator
// outages and cancellation.
func (r *Reasoner) Reason(ctx context.Context, question string, maxHops int) (*Result, error) {
	bounds := Bounds{MaxHops: r.opts.MaxHops, MaxPaths: r.opts.MaxPaths, RelationTypes: r.opts.RelationTypes}
	if maxHops > 0 && maxHops < bounds.MaxHops {
		bounds.MaxHops = maxHops
	}
	result := &Result{Question: question}

	focus, err := r.focusEntities(ctx, question)
	if err != nil {
		return nil, err
	}
	result.Entities = focus
	if len(focus) == 0 {
		return r.noPath(result, ReasonNoEntities), nil
	}

	query, err := r.plan(ctx, question, focus, bounds, result)
	if err != nil {
		var invalid *types.TraversalSpecInvalidError
		if errors.As(err, &invalid) {
			return r.noPath(result, ReasonSpecInvalid), nil
		}
		return nil, err
	}
	result.Query = &query

	start := time.Now()
	queryCtx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	paths, err := r.store.FindPaths(queryCtx, query)
	cancel()
	r.opts.Metrics.ObserveStage("traverse", start)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("reason: %w", ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			r.logger.Warn("Path query timed out", "timeout", r.opts.QueryTimeout)
			return r.noPath(result, ReasonTimeout), nil
		case errors.Is(err, types.ErrServiceUnavailable):
			return nil, fmt.Errorf("reason: %w", err)
		default:
			r.logger.Warn("Path query failed", "error", err)
			return r.noPath(result, ReasonQueryFailed), nil
		}
	}

	paths = r.selectPaths(paths, bounds, query.Limit)
	if len(paths) == 0 {
		return r.noPath(result, ReasonNoPaths), nil
	}

	result.Status = StatusOK
	result.Paths = paths
	result.Confidence = ScoreConfidence(paths, r.opts.LengthDecay)
	result.Evidence = BuildEvidence(paths, r.opts.MaxEvidence)
	result.Narrative, result.NarrativeSource = r.narrate(ctx, question, result)

	r.logger.Info("Reasoning complete",
		"paths", len(paths),
		"evidence", len(result.Evidence),
		"confidence", result.Confidence.Score,
		"narrative", result.NarrativeSource)
	return result, nil
}

// focusEntities returns the mentioned entities that exist in the store.
func (r *Reasoner) focusEntities(ctx context.Context, question string) ([]*types.CanonicalEntity, error) {
	var out []*types.CanonicalEntity
	for _, m := range r.resolver.ResolveMentions(question) {
		ent, err := r.store.GetEntity(ctx, m.ID)
		if err != nil {
			if driver.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("reason: load entity %s: %w", m.CanonicalName, err)
		}
		out = append(out, ent)
	}
	return out, nil
}

// plan obtains a valid query, sending rejections back to the model up to
// SpecRetries times.
func (r *Reasoner) plan(ctx context.Context, question string, focus []*types.CanonicalEntity, b Bounds, result *Result) (driver.PathQuery, error) {
	start := time.Now()
	defer r.opts.Metrics.ObserveStage("plan", start)

	focusIDs := make([]string, len(focus))
	for i, e := range focus {
		focusIDs[i] = e.ID
	}

	var storeErr error
	lookup := func(name string) (string, bool) {
		res, ok := r.resolver.Lookup(name)
		if !ok {
			return "", false
		}
		if _, err := r.store.GetEntity(ctx, res.ID); err != nil {
			if !driver.IsNotFound(err) && storeErr == nil {
				storeErr = err
			}
			return "", false
		}
		return res.ID, true
	}

	if r.client == nil {
		spec := DefaultSpec(focus)
		result.Spec = spec
		result.SpecAttempts = 1
		q, err := spec.Validate(b, lookup, focusIDs)
		if storeErr != nil {
			return driver.PathQuery{}, fmt.Errorf("reason: %w", storeErr)
		}
		if err != nil {
			result.SpecErrors = append(result.SpecErrors, err.Error())
			r.opts.Metrics.RecordSpecRejection()
		}
		return q, err
	}

	var rejection string
	var lastErr error
	for attempt := 0; attempt <= r.opts.SpecRetries; attempt++ {
		result.SpecAttempts++
		spec, err := r.requestSpec(ctx, question, focus, b, rejection)
		if err != nil {
			if errors.Is(err, types.ErrServiceUnavailable) || ctx.Err() != nil {
				return driver.PathQuery{}, fmt.Errorf("reason: %w", err)
			}
		} else {
			result.Spec = spec
			var q driver.PathQuery
			q, err = spec.Validate(b, lookup, focusIDs)
			if storeErr != nil {
				return driver.PathQuery{}, fmt.Errorf("reason: %w", storeErr)
			}
			if err == nil {
				return q, nil
			}
		}

		lastErr = err
		rejection = err.Error()
		result.SpecErrors = append(result.SpecErrors, rejection)
		r.opts.Metrics.RecordSpecRejection()
		r.logger.Warn("Traversal spec rejected", "attempt", attempt+1, "error", err)
	}

	var invalid *types.TraversalSpecInvalidError
	if !errors.As(lastErr, &invalid) {
		lastErr = &types.TraversalSpecInvalidError{Reasons: []string{lastErr.Error()}}
	}
	return driver.PathQuery{}, lastErr
}

func (r *Reasoner) requestSpec(ctx context.Context, question string, focus []*types.CanonicalEntity, b Bounds, rejection string) (*TraversalSpec, error) {
	rows := make([]prompts.EntityRow, len(focus))
	for i, e := range focus {
		rows[i] = prompts.EntityRow{ID: e.ID, Name: e.CanonicalName, Type: string(e.Type)}
	}
	relTypes := make([]string, len(b.RelationTypes))
	for i, t := range b.RelationTypes {
		relTypes[i] = string(t)
	}
	reasoning := make([]string, len(ReasoningTypes))
	for i, t := range ReasoningTypes {
		reasoning[i] = string(t)
	}

	prompt, err := r.opts.Prompts.Traversal.Call(map[string]any{
		"question":        question,
		"entities":        rows,
		"relation_types":  relTypes,
		"reasoning_types": reasoning,
		"max_hops":        b.MaxHops,
		"max_paths":       b.MaxPaths,
		"rejection":       rejection,
		"logger":          r.logger,
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(nlp.WithUsage(ctx, types.UsageTraversal), r.opts.SpecTimeout)
	defer cancel()
	raw, err := nlp.Complete(callCtx, r.client, prompt, specTemperature, nlp.JSONOutput())
	if err != nil {
		return nil, err
	}
	return ParseTraversalSpec(raw)
}

// DefaultSpec links the first mentioned entity to the others, or explores
// around it when only one entity is mentioned.
func DefaultSpec(focus []*types.CanonicalEntity) *TraversalSpec {
	spec := &TraversalSpec{ReasoningType: RiskChain, Direction: string(types.DirectionAny)}
	for i, e := range focus {
		if i == 0 {
			spec.Start = append(spec.Start, e.CanonicalName)
			continue
		}
		spec.Targets = append(spec.Targets, e.CanonicalName)
	}
	return spec
}

// selectPaths drops paths over the bound and repeats, then ranks.
func (r *Reasoner) selectPaths(paths []types.ReasoningPath, b Bounds, limit int) []types.ReasoningPath {
	seen := make(map[string]struct{}, len(paths))
	out := make([]types.ReasoningPath, 0, len(paths))
	for _, p := range paths {
		if p.Length() == 0 || p.Length() > b.MaxHops {
			continue
		}
		key := p.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	types.RankPaths(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// narrate drafts the answer text. The model draft is kept only when it
// names no entity outside the paths; otherwise the template is used.
func (r *Reasoner) narrate(ctx context.Context, question string, result *Result) (string, string) {
	start := time.Now()
	defer r.opts.Metrics.ObserveStage("narrate", start)

	template := TemplateNarrative(result.Evidence)
	if r.client == nil {
		return template, NarrativeTemplate
	}

	evidence := make([]prompts.EvidenceRow, len(result.Evidence))
	for i, ev := range result.Evidence {
		evidence[i] = prompts.EvidenceRow{Index: i + 1, Snippet: ev.Snippet, Source: ev.SourceID}
	}
	paths := make([]prompts.PathRow, len(result.Paths))
	for i := range result.Paths {
		p := &result.Paths[i]
		paths[i] = prompts.PathRow{Rank: i + 1, Path: p.String(), Hops: p.Length(), Weight: p.TotalWeight()}
	}
	reasoningType := string(RiskChain)
	if result.Spec != nil {
		reasoningType = string(result.Spec.ReasoningType)
	}

	prompt, err := r.opts.Prompts.Narrative.Call(map[string]any{
		"question":       question,
		"evidence":       evidence,
		"paths":          paths,
		"reasoning_type": reasoningType,
		"logger":         r.logger,
	})
	if err != nil {
		r.logger.Warn("Narrative prompt failed, using template", "error", err)
		return template, NarrativeTemplate
	}

	callCtx, cancel := context.WithTimeout(nlp.WithUsage(ctx, types.UsageNarrative), r.opts.NarrativeTimeout)
	defer cancel()
	text, err := nlp.Complete(callCtx, r.client, prompt, narrativeTemperature, nlp.TextOutput())
	if err != nil {
		r.logger.Warn("Narrative completion failed, using template", "error", err)
		return template, NarrativeTemplate
	}

	onPath := make(map[string]struct{})
	for i := range result.Paths {
		for _, id := range result.Paths[i].EntityIDs() {
			onPath[id] = struct{}{}
		}
	}
	for _, m := range r.resolver.ResolveMentions(text) {
		if _, ok := onPath[m.ID]; !ok {
			r.logger.Warn("Narrative names an entity outside the paths, using template", "entity", m.CanonicalName)
			return template, NarrativeTemplate
		}
	}
	return strings.TrimSpace(text), NarrativeModel
}

func (r *Reasoner) noPath(result *Result, reason string) *Result {
	result.Status = StatusNoPathFound
	result.Reason = reason
	r.logger.Info("No path found", "reason", reason, "entities", len(result.Entities))
	return result
}
