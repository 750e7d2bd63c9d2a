// Package metrics exposes Prometheus instrumentation for the query and
// ingestion pipelines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "groundgraph"

// Metrics contains all pipeline metrics
type Metrics struct {
	Questions       *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	Confidence      prometheus.Histogram
	Resolutions     *prometheus.CounterVec
	IngestedRecords *prometheus.CounterVec
	GraphWrites     *prometheus.CounterVec
	SpecRejections  prometheus.Counter
	LiveEscalations *prometheus.CounterVec
	Tokens          *prometheus.CounterVec
}

// New creates a Metrics instance. Call Register to expose it.
func New() *Metrics {
	return &Metrics{
		Questions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "questions_total",
				Help:      "Questions answered, by route and terminal outcome",
			},
			[]string{"route", "outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
		Confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "confidence",
				Help:      "Validated answer confidence",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "resolutions_total",
				Help:      "Entity resolutions by method (alias, abbreviation, fuzzy, new)",
			},
			[]string{"method"},
		),
		IngestedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "records_total",
				Help:      "Ingested records by status (ok, partial, failed)",
			},
			[]string{"status"},
		),
		GraphWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "graph_writes_total",
				Help:      "Entity and relationship upserts that changed the graph",
			},
			[]string{"kind"},
		),
		SpecRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reasoner",
				Name:      "spec_rejections_total",
				Help:      "Generated traversal specs rejected by the allow-list",
			},
		),
		LiveEscalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "live_escalations_total",
				Help:      "Transitions into the live-search path, by cause",
			},
			[]string{"cause"},
		),
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "completion",
				Name:      "tokens_total",
				Help:      "Completion tokens by pipeline stage, model and kind (prompt, completion)",
			},
			[]string{"stage", "model", "kind"},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.Questions, m.StageDuration, m.Confidence, m.Resolutions,
		m.IngestedRecords, m.GraphWrites, m.SpecRejections, m.LiveEscalations, m.Tokens,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveStage records the time elapsed since start. Safe on a nil receiver.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordQuestion counts a finished question. Safe on a nil receiver.
func (m *Metrics) RecordQuestion(route, outcome string, confidence float64) {
	if m == nil {
		return
	}
	m.Questions.WithLabelValues(route, outcome).Inc()
	m.Confidence.Observe(confidence)
}

// RecordResolution counts a resolver decision. Safe on a nil receiver.
func (m *Metrics) RecordResolution(method string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(method).Inc()
}

// RecordIngest counts a record and its graph writes. Safe on a nil receiver.
func (m *Metrics) RecordIngest(status string, entities, relationships int) {
	if m == nil {
		return
	}
	m.IngestedRecords.WithLabelValues(status).Inc()
	m.GraphWrites.WithLabelValues("entity").Add(float64(entities))
	m.GraphWrites.WithLabelValues("relationship").Add(float64(relationships))
}

// RecordSpecRejection counts a rejected traversal spec. Safe on a nil receiver.
func (m *Metrics) RecordSpecRejection() {
	if m == nil {
		return
	}
	m.SpecRejections.Inc()
}

// RecordEscalation counts a transition into live search. Safe on a nil receiver.
func (m *Metrics) RecordEscalation(cause string) {
	if m == nil {
		return
	}
	m.LiveEscalations.WithLabelValues(cause).Inc()
}

// RecordTokens counts completion tokens. Safe on a nil receiver.
func (m *Metrics) RecordTokens(stage, model string, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues(stage, model, "prompt").Add(float64(promptTokens))
	m.Tokens.WithLabelValues(stage, model, "completion").Add(float64(completionTokens))
}
