package groundgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundprediction/groundgraph/pkg/checkpoint"
	"github.com/soundprediction/groundgraph/pkg/citation"
	"github.com/soundprediction/groundgraph/pkg/config"
	"github.com/soundprediction/groundgraph/pkg/driver"
	"github.com/soundprediction/groundgraph/pkg/ingest"
	"github.com/soundprediction/groundgraph/pkg/metrics"
	"github.com/soundprediction/groundgraph/pkg/nlp"
	"github.com/soundprediction/groundgraph/pkg/prompts"
	"github.com/soundprediction/groundgraph/pkg/reasoner"
	"github.com/soundprediction/groundgraph/pkg/report"
	"github.com/soundprediction/groundgraph/pkg/resolver"
	"github.com/soundprediction/groundgraph/pkg/router"
	"github.com/soundprediction/groundgraph/pkg/telemetry"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/soundprediction/groundgraph/pkg/utils"
)

// NotFoundMarker is the answer text whenever the graph cannot ground a
// response.
const NotFoundMarker = citation.NotFoundMarker

// DefaultLiveTimeout bounds one live-search call.
const DefaultLiveTimeout = 20 * time.Second

// Outcomes recorded on Answer and in metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeFallback = "fallback"
	OutcomeLive     = "live"
)

// Escalation causes.
const (
	causeRoute     = "route"
	causeNoPath    = "no_path"
	causeRejected  = "rejected"
	causeReasoning = "reasoning_error"
)

const tracerName = "github.com/soundprediction/groundgraph"

// Options configures a Client. Component options left without Metrics or
// Logger inherit the ones set here.
type Options struct {
	Resolver  resolver.Options
	Ingest    ingest.Options
	Router    router.Options
	Reasoner  reasoner.Options
	Validator citation.Options
	Report    report.Options

	// Searcher is the live-search collaborator. Nil makes every escalation
	// fail with a ServiceUnavailableError.
	Searcher    LiveSearcher
	LiveTimeout time.Duration

	Metrics *metrics.Metrics
	Audit   *telemetry.AuditLog
	Logger  *slog.Logger
}

// AskOptions tunes a single question.
type AskOptions struct {
	// MaxHops tightens the configured hop bound when positive.
	MaxHops int
}

// Answer is everything Ask learned about one question.
type Answer struct {
	QueryID     string       `json:"query_id"`
	Question    string       `json:"question"`
	Text        string       `json:"text"`
	Route       router.Route `json:"route"`
	RouteStage  router.Stage `json:"route_stage"`
	State       State        `json:"state"`
	Outcome     string       `json:"outcome"`
	Transitions []Transition `json:"transitions"`

	// Confidence is the validated citation confidence; PathConfidence is
	// the graph corroboration score behind it.
	Confidence     float64               `json:"confidence"`
	PathConfidence float64               `json:"path_confidence"`
	Evidence       []types.Evidence      `json:"evidence,omitempty"`
	Paths          []types.ReasoningPath `json:"paths,omitempty"`
	Reasoning      *reasoner.Result      `json:"reasoning,omitempty"`
	Validation     *citation.Outcome     `json:"validation,omitempty"`
	Report         *report.Report        `json:"report,omitempty"`
	LiveResults    []LiveResult          `json:"live_results,omitempty"`
	Duration       time.Duration         `json:"duration"`
}

// Grounded reports whether the answer was accepted from the graph.
func (a *Answer) Grounded() bool {
	return a != nil && a.Outcome == OutcomeAccepted
}

// Stats summarizes resolver and integrator activity.
type Stats struct {
	Resolver resolver.Stats `json:"resolver"`
	Ingest   ingest.Stats   `json:"ingest"`
}

// Client is the entry point for ingesting records and asking questions.
// It is safe for concurrent use.
type Client struct {
	store       driver.GraphStore
	llm         nlp.Client
	resolver    *resolver.Resolver
	integrator  *ingest.Integrator
	router      *router.Router
	reasoner    *reasoner.Reasoner
	validator   *citation.Validator
	synthesizer *report.Synthesizer
	searcher    LiveSearcher
	liveTimeout time.Duration
	metrics     *metrics.Metrics
	audit       *telemetry.AuditLog
	errorLog    *telemetry.ParquetHandler
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a client over store. llm may be nil.
func New(ctx context.Context, store driver.GraphStore, llm nlp.Client, opts Options) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LiveTimeout <= 0 {
		opts.LiveTimeout = DefaultLiveTimeout
	}
	inherit := func(m **metrics.Metrics, l **slog.Logger) {
		if *m == nil {
			*m = opts.Metrics
		}
		if *l == nil {
			*l = opts.Logger
		}
	}
	inherit(&opts.Resolver.Metrics, &opts.Resolver.Logger)
	inherit(&opts.Ingest.Metrics, &opts.Ingest.Logger)
	inherit(&opts.Router.Metrics, &opts.Router.Logger)
	inherit(&opts.Reasoner.Metrics, &opts.Reasoner.Logger)
	inherit(&opts.Validator.Metrics, &opts.Validator.Logger)
	inherit(&opts.Report.Metrics, &opts.Report.Logger)

	library := prompts.NewLibrary()
	if opts.Router.Prompts == nil {
		opts.Router.Prompts = library
	}
	if opts.Reasoner.Prompts == nil {
		opts.Reasoner.Prompts = library
	}
	if opts.Report.Prompts == nil {
		opts.Report.Prompts = library
	}

	res, err := resolver.New(ctx, opts.Resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	return &Client{
		store:       store,
		llm:         llm,
		resolver:    res,
		integrator:  ingest.New(store, res, opts.Ingest),
		router:      router.New(llm, opts.Router),
		reasoner:    reasoner.New(res, store, llm, opts.Reasoner),
		validator:   citation.New(opts.Validator),
		synthesizer: report.New(llm, opts.Report),
		searcher:    opts.Searcher,
		liveTimeout: opts.LiveTimeout,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		tracer:      otel.Tracer(tracerName),
		logger:      opts.Logger,
		now:         time.Now,
	}, nil
}

// NewFromConfig builds the graph store, completion stack, alias store,
// checkpoints and audit trail described by cfg. The completion stack is
// only built when a model has an API key; without one the client runs on
// keyword routing and template narratives.
func NewFromConfig(ctx context.Context, cfg *config.Config, searcher LiveSearcher, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cleanup []func() error
	fail := func(err error) (*Client, error) {
		logger.Error("Failed to start client", "error", err)
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i]()
		}
		return nil, err
	}

	var errHandler *telemetry.ParquetHandler
	if cfg.Telemetry.ParquetPath != "" {
		h, err := telemetry.NewParquetHandler(logger.Handler(), filepath.Join(cfg.Telemetry.ParquetPath, "errors"), cfg.Telemetry.AuditBatchSize)
		if err != nil {
			return nil, err
		}
		errHandler = h
		logger = slog.New(h)
		cleanup = append(cleanup, h.Flush)
	}

	m := metrics.New()
	if cfg.Telemetry.MetricsEnabled {
		if err := m.Register(prometheus.DefaultRegisterer); err != nil {
			logger.Warn("Metrics already registered", "error", err)
		}
	}

	store, err := driver.NewGraphStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, store.Close)

	var llm nlp.Client
	if hasAPIKey(cfg) {
		llm, err = nlp.NewClientFromConfig(cfg, m, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to create completion client: %w", err))
		}
		cleanup = append(cleanup, llm.Close)
	} else {
		logger.Warn("No completion API key configured, using keyword routing and template narratives")
	}

	var aliases resolver.AliasStore
	if cfg.Resolver.AliasPath != "" {
		bs, err := resolver.OpenBadgerAliasStore(cfg.Resolver.AliasPath)
		if err != nil {
			return fail(err)
		}
		aliases = bs
		cleanup = append(cleanup, bs.Close)
	}

	var checkpoints *checkpoint.CheckpointManager
	if cfg.Ingest.CheckpointDir != "" {
		checkpoints, err = checkpoint.NewCheckpointManager(cfg.Ingest.CheckpointDir)
		if err != nil {
			return fail(err)
		}
	}

	var audit *telemetry.AuditLog
	if cfg.Telemetry.ParquetPath != "" {
		audit, err = telemetry.NewAuditLog(filepath.Join(cfg.Telemetry.ParquetPath, "audit"), cfg.Telemetry.AuditBatchSize, logger)
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, audit.Close)
	}

	relTypes := make([]types.RelationType, 0, len(cfg.Reasoner.RelationTypes))
	for _, t := range cfg.Reasoner.RelationTypes {
		if rt := types.SanitizeRelationType(t); rt != "" {
			relTypes = append(relTypes, rt)
		}
	}

	client, err := New(ctx, store, llm, Options{
		Resolver: resolver.Options{
			SimilarityThreshold: cfg.Resolver.SimilarityThreshold,
			AmbiguityMargin:     cfg.Resolver.AmbiguityMargin,
			Aliases:             cfg.Resolver.Aliases,
			Abbreviations:       cfg.Resolver.Abbreviations,
			Store:               aliases,
		},
		Ingest: ingest.Options{
			CombineRule:   cfg.Ingest.CombineRule,
			DefaultWeight: cfg.Ingest.DefaultWeight,
			Concurrency:   cfg.Ingest.Concurrency,
			Checkpoints:   checkpoints,
		},
		Router: router.Options{
			Keywords: cfg.Router.LiveKeywords,
			Timeout:  cfg.Router.Timeout,
		},
		Reasoner: reasoner.Options{
			MaxHops:          cfg.Reasoner.MaxHops,
			MaxPaths:         cfg.Reasoner.MaxPaths,
			MaxEvidence:      cfg.Reasoner.MaxEvidence,
			LengthDecay:      cfg.Reasoner.LengthDecay,
			SpecRetries:      cfg.Reasoner.SpecRetries,
			RelationTypes:    relTypes,
			SpecTimeout:      cfg.Reasoner.SpecTimeout,
			QueryTimeout:     cfg.Reasoner.QueryTimeout,
			NarrativeTimeout: cfg.Reasoner.NarrativeTimeout,
		},
		Validator: citation.Options{
			OverlapThreshold:       cfg.Validator.OverlapThreshold,
			AccuracyWeight:         cfg.Validator.AccuracyWeight,
			SupportWeight:          cfg.Validator.SupportWeight,
			MinConfidence:          cfg.Validator.MinConfidence,
			NoMinimum:              cfg.Validator.MinConfidence == 0,
			MissingCitationPenalty: cfg.Validator.MissingCitationPenalty,
			Timeout:                cfg.Validator.Timeout,
		},
		Report: report.Options{
			Timeout:          cfg.Report.Timeout,
			OverlapThreshold: cfg.Validator.OverlapThreshold,
		},
		Searcher: searcher,
		Metrics:  m,
		Audit:    audit,
		Logger:   logger,
	})
	if err != nil {
		return fail(err)
	}
	client.errorLog = errHandler
	return client, nil
}

func hasAPIKey(cfg *config.Config) bool {
	for _, m := range cfg.NLP.Models {
		if m.APIKey != "" {
			return true
		}
	}
	return false
}

// Resolver returns the entity resolver shared by ingestion and reasoning.
func (c *Client) Resolver() *resolver.Resolver {
	return c.resolver
}

// Store returns the graph store.
func (c *Client) Store() driver.GraphStore {
	return c.store
}

// Ask answers question. The returned Answer is never nil; when a
// collaborator is unavailable the answer holds the fallback and the error
// is a ServiceUnavailableError.
func (c *Client) Ask(ctx context.Context, question string, opts *AskOptions) (*Answer, error) {
	if opts == nil {
		opts = &AskOptions{}
	}
	start := c.now()
	queryID := uuid.NewString()
	ctx = context.WithValue(ctx, types.ContextKeyQueryID, queryID)
	logger := c.logger.With("query_id", queryID)

	ctx, span := c.tracer.Start(ctx, "groundgraph.ask")
	defer span.End()
	span.SetAttributes(attribute.String("query_id", queryID), attribute.Int("max_hops", opts.MaxHops))

	m := newMachine(c.now)
	answer := &Answer{QueryID: queryID, Question: question}

	err := c.ask(ctx, question, opts, m, answer, logger)

	m.terminate("done")
	answer.State = m.state
	answer.Transitions = m.transitions
	answer.Duration = c.now().Sub(start)

	span.SetAttributes(
		attribute.String("route", string(answer.Route)),
		attribute.String("outcome", answer.Outcome),
		attribute.Float64("confidence", answer.Confidence),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	c.metrics.RecordQuestion(string(answer.Route), answer.Outcome, answer.Confidence)
	c.writeAudit(ctx, answer, m, err, logger)
	logger.Info("Answered question",
		"route", answer.Route,
		"outcome", answer.Outcome,
		"confidence", answer.Confidence,
		"duration", answer.Duration)
	return answer, err
}

func (c *Client) ask(ctx context.Context, question string, opts *AskOptions, m *machine, answer *Answer, logger *slog.Logger) error {
	decision := c.classify(ctx, question)
	answer.Route = decision.Route
	answer.RouteStage = decision.Stage
	if err := m.advance(StateClassified, string(decision.Route)); err != nil {
		return err
	}

	if decision.Route == router.RouteLive {
		answer.Outcome = OutcomeLive
		return c.answerLive(ctx, question, answer, logger)
	}

	result, err := c.reason(ctx, question, opts.MaxHops)
	answer.Reasoning = result
	if err != nil {
		_ = m.advance(StateTraversed, "error")
		_ = m.advance(StateRejectedFallback, "reasoning failed")
		if ctx.Err() != nil {
			c.fallback(answer, nil)
			return fmt.Errorf("ask cancelled: %w", err)
		}
		logger.Warn("Reasoning failed, falling back to live search", "error", err)
		c.escalate(ctx, question, answer, causeReasoning, logger)
		return err
	}

	answer.Paths = result.Paths
	answer.PathConfidence = result.Confidence.Score
	if !result.Found() {
		_ = m.advance(StateTraversed, result.Reason)
		_ = m.advance(StateRejectedFallback, "no path found")
		return c.escalate(ctx, question, answer, causeNoPath, logger)
	}
	if err := m.advance(StateTraversed, fmt.Sprintf("%d path(s)", len(result.Paths))); err != nil {
		return err
	}
	if err := m.advance(StateSynthesized, result.NarrativeSource); err != nil {
		return err
	}

	outcome := c.validate(ctx, result.Narrative, result.Evidence)
	answer.Validation = outcome
	if err := m.advance(StateValidated, fmt.Sprintf("confidence %.2f", outcome.Result.ConfidenceScore)); err != nil {
		return err
	}
	if !outcome.Accepted {
		_ = m.advance(StateRejectedFallback, outcome.Reason)
		return c.escalate(ctx, question, answer, causeRejected, logger)
	}
	if err := m.advance(StateAccepted, ""); err != nil {
		return err
	}

	answer.Outcome = OutcomeAccepted
	answer.Text = outcome.Answer
	answer.Evidence = outcome.Evidence
	answer.Confidence = outcome.Result.ConfidenceScore
	answer.Report = c.render(ctx, question, outcome.Answer, outcome.Evidence, answer.Confidence)
	return nil
}

func (c *Client) classify(ctx context.Context, question string) router.Decision {
	ctx, span := c.tracer.Start(ctx, "groundgraph.classify")
	defer span.End()
	d := c.router.Classify(ctx, question)
	span.SetAttributes(attribute.String("route", string(d.Route)), attribute.String("stage", string(d.Stage)))
	return d
}

func (c *Client) reason(ctx context.Context, question string, maxHops int) (*reasoner.Result, error) {
	ctx, span := c.tracer.Start(ctx, "groundgraph.reason")
	defer span.End()
	result, err := c.reasoner.Reason(ctx, question, maxHops)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("paths", len(result.Paths)),
		attribute.Int("spec_attempts", result.SpecAttempts),
	)
	return result, nil
}

func (c *Client) validate(ctx context.Context, draft string, evidence []types.Evidence) *citation.Outcome {
	ctx, span := c.tracer.Start(ctx, "groundgraph.validate")
	defer span.End()
	out := c.validator.Validate(ctx, draft, evidence)
	span.SetAttributes(
		attribute.Bool("accepted", out.Accepted),
		attribute.Int("invalid_citations", len(out.Invalid)),
	)
	return out
}

func (c *Client) render(ctx context.Context, question, text string, evidence []types.Evidence, confidence float64) *report.Report {
	ctx, span := c.tracer.Start(ctx, "groundgraph.render")
	defer span.End()
	r := c.synthesizer.Render(ctx, question, text, evidence, confidence)
	span.SetAttributes(attribute.String("source", r.Source))
	return r
}

// answerLive handles a question routed straight to live search.
func (c *Client) answerLive(ctx context.Context, question string, answer *Answer, logger *slog.Logger) error {
	c.metrics.RecordEscalation(causeRoute)
	results, err := c.search(ctx, question)
	answer.LiveResults = results
	evidence := liveEvidence(results)
	if err != nil || len(evidence) == 0 {
		if err != nil {
			logger.Warn("Live search failed", "error", err)
		}
		answer.Text = NotFoundMarker
		answer.Report = c.synthesizer.Fallback(question, NotFoundMarker, nil, 0)
		return err
	}
	answer.Text = liveText(evidence)
	answer.Evidence = evidence
	answer.Report = c.synthesizer.Fallback(question, answer.Text, evidence, 0)
	return nil
}

// escalate makes the single live-search call a fallback is allowed. The
// answer text stays NotFoundMarker; live results ride alongside it.
func (c *Client) escalate(ctx context.Context, question string, answer *Answer, cause string, logger *slog.Logger) error {
	c.metrics.RecordEscalation(cause)
	logger.Info("Escalating to live search", "cause", cause)
	results, err := c.search(ctx, question)
	c.fallback(answer, results)
	if err != nil {
		logger.Warn("Live search failed", "error", err)
	}
	return err
}

func (c *Client) fallback(answer *Answer, results []LiveResult) {
	answer.Outcome = OutcomeFallback
	answer.Text = NotFoundMarker
	answer.Evidence = nil
	answer.Confidence = 0
	answer.LiveResults = results
	answer.Report = c.synthesizer.Fallback(answer.Question, NotFoundMarker, nil, 0)
}

func (c *Client) search(ctx context.Context, question string) ([]LiveResult, error) {
	ctx, span := c.tracer.Start(ctx, "groundgraph.live_search")
	defer span.End()
	if c.searcher == nil {
		err := types.NewServiceUnavailableError(types.CollaboratorSearch, "search", types.ErrLiveSearchUnavailable)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.liveTimeout)
	defer cancel()
	results, err := c.searcher.Search(callCtx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, types.ErrServiceUnavailable) {
			return nil, err
		}
		return nil, types.NewServiceUnavailableError(types.CollaboratorSearch, "search", err)
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

func (c *Client) writeAudit(ctx context.Context, answer *Answer, m *machine, askErr error, logger *slog.Logger) {
	if c.audit == nil {
		return
	}
	rec := telemetry.AuditRecord{
		QueryID:       answer.QueryID,
		Timestamp:     c.now(),
		Question:      answer.Question,
		Route:         string(answer.Route),
		RouteStage:    string(answer.RouteStage),
		FinalState:    string(answer.State),
		Transitions:   m.history(),
		Answer:        answer.Text,
		Confidence:    answer.Confidence,
		PathCount:     int64(len(answer.Paths)),
		EvidenceCount: int64(len(answer.Evidence)),
		LiveResults:   int64(len(answer.LiveResults)),
		DurationMS:    answer.Duration.Milliseconds(),
	}
	if answer.Reasoning != nil {
		rec.SpecAttempts = int64(answer.Reasoning.SpecAttempts)
	}
	if askErr != nil {
		rec.Error = askErr.Error()
	}
	if err := c.audit.Record(ctx, rec); err != nil {
		logger.Error("Failed to write audit record", "error", err)
	}
}

// Ingest merges one record into the graph.
func (c *Client) Ingest(ctx context.Context, rec ingest.Record, mapping *ingest.SourceMapping) (*ingest.Result, error) {
	ctx, span := c.tracer.Start(ctx, "groundgraph.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("source_id", rec.Source()))
	res, err := c.integrator.Ingest(ctx, rec, mapping)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// IngestBatch merges records in parallel, resuming batchID from its
// checkpoint when checkpoints are configured.
func (c *Client) IngestBatch(ctx context.Context, batchID string, records []ingest.Record, mapping *ingest.SourceMapping) (*ingest.BatchResult, error) {
	ctx, span := c.tracer.Start(ctx, "groundgraph.ingest_batch")
	defer span.End()
	span.SetAttributes(attribute.String("batch_id", batchID), attribute.Int("records", len(records)))
	res, err := c.integrator.IngestBatch(ctx, batchID, records, mapping)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// Reset clears the graph and the alias table. It is the only destructive
// operation the client exposes.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset graph store: %w", err)
	}
	if err := c.resolver.Reset(ctx); err != nil {
		return err
	}
	c.logger.Warn("Graph and alias table reset")
	return nil
}

// Stats reports resolver and integrator counters.
func (c *Client) Stats() Stats {
	return Stats{Resolver: c.resolver.Stats(), Ingest: c.integrator.Stats()}
}

// ExportResult names the files written by Export.
type ExportResult struct {
	SnapshotID        string
	EntitiesFile      string
	RelationshipsFile string
	Entities          int
	Relationships     int
}

// Export writes a Parquet snapshot of the graph under dir.
func (c *Client) Export(ctx context.Context, dir string) (*ExportResult, error) {
	entities, err := c.store.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	rels, err := c.store.ListRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}

	w, err := utils.NewParquetGraphWriter(dir)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	out := &ExportResult{SnapshotID: uuid.NewString(), Entities: len(entities), Relationships: len(rels)}
	if out.EntitiesFile, err = w.WriteEntities(ctx, entities, out.SnapshotID); err != nil {
		return nil, err
	}
	if out.RelationshipsFile, err = w.WriteRelationships(ctx, rels, out.SnapshotID); err != nil {
		return nil, err
	}
	c.logger.Info("Exported graph snapshot", "snapshot_id", out.SnapshotID,
		"entities", out.Entities, "relationships", out.Relationships)
	return out, nil
}

// Close flushes telemetry and releases the resolver, the completion client
// and the store.
func (c *Client) Close() error {
	var errs []error
	if c.audit != nil {
		errs = append(errs, c.audit.Close())
	}
	if c.errorLog != nil {
		errs = append(errs, c.errorLog.Flush())
	}
	errs = append(errs, c.resolver.Close())
	if c.llm != nil {
		errs = append(errs, c.llm.Close())
	}
	errs = append(errs, c.store.Close())
	return errors.Join(errs...)
}
