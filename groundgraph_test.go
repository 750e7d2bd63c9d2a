package groundgraph

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/groundgraph/pkg/config"
	"github.com/soundprediction/groundgraph/pkg/driver"
	"github.com/soundprediction/groundgraph/pkg/ingest"
	"github.com/soundprediction/groundgraph/pkg/nlp"
	"github.com/soundprediction/groundgraph/pkg/report"
	"github.com/soundprediction/groundgraph/pkg/router"
	"github.com/soundprediction/groundgraph/pkg/telemetry"
	"github.com/soundprediction/groundgraph/pkg/types"
)

const scenarioQuestion = "What risk does CompanyA face from CountryX?"

var scenarioRecord = ingest.ExtractedRecord{
	SourceID: "news-1",
	Entities: []ingest.ExtractedEntity{
		{Name: "CompanyA", Type: "Company"},
		{Name: "SupplierB", Type: "Company"},
		{Name: "CountryX", Type: "Country"},
		{Name: "RiskEvent", Type: "Event"},
	},
	Relations: []ingest.ExtractedRelation{
		{Source: "CompanyA", Target: "SupplierB", Type: "DEPENDS_ON", Properties: map[string]any{"weight": 0.9}},
		{Source: "SupplierB", Target: "CountryX", Type: "LOCATED_IN"},
		{Source: "RiskEvent", Target: "CountryX", Type: "AFFECTS", Properties: map[string]any{"severity": 0.95}},
	},
}

// fakeSearcher counts calls and returns canned results.
type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	results []LiveResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string) ([]LiveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, f.err
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// usageClient replies by pipeline stage.
type usageClient struct {
	replies map[string]string
}

func (u *usageClient) Chat(ctx context.Context, _ []types.Message) (*types.Response, error) {
	return &types.Response{Content: u.replies[nlp.UsageFromContext(ctx)]}, nil
}

func (u *usageClient) ChatWithStructuredOutput(ctx context.Context, msgs []types.Message, _ any) (*types.Response, error) {
	return u.Chat(ctx, msgs)
}

func (u *usageClient) Close() error { return nil }

// brokenStore fails every path query as if the database were down.
type brokenStore struct {
	*driver.MemoryDriver
}

func (b *brokenStore) FindPaths(context.Context, driver.PathQuery) ([]types.ReasoningPath, error) {
	return nil, types.NewServiceUnavailableError(types.CollaboratorStore, "find_paths", errors.New("connection refused"))
}

func newScenarioClient(t *testing.T, store driver.GraphStore, llm nlp.Client, opts Options) *Client {
	t.Helper()
	if store == nil {
		store = driver.NewMemoryDriver()
	}
	c, err := New(context.Background(), store, llm, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Ingest(context.Background(), scenarioRecord, nil)
	require.NoError(t, err)
	return c
}

func states(ts []Transition) []State {
	out := []State{StateInit}
	for _, t := range ts {
		out = append(out, t.To)
	}
	return out
}

func TestAsk_ScenarioAccepted(t *testing.T) {
	searcher := &fakeSearcher{}
	c := newScenarioClient(t, nil, nil, Options{Searcher: searcher})

	answer, err := c.Ask(context.Background(), scenarioQuestion, &AskOptions{MaxHops: 3})
	require.NoError(t, err)

	assert.True(t, answer.Grounded())
	assert.Equal(t, router.RouteGraph, answer.Route)
	assert.Equal(t, StateTerminal, answer.State)
	assert.Equal(t, []State{
		StateInit, StateClassified, StateTraversed, StateSynthesized,
		StateValidated, StateAccepted, StateTerminal,
	}, states(answer.Transitions))

	require.NotEmpty(t, answer.Paths)
	assert.Equal(t, "CompanyA -[DEPENDS_ON]-> SupplierB -[LOCATED_IN]-> CountryX", answer.Paths[0].String())
	assert.Greater(t, answer.PathConfidence, 0.5)
	assert.InDelta(t, 1.0, answer.Confidence, 1e-9)

	assert.NotEqual(t, NotFoundMarker, answer.Text)
	assert.Contains(t, answer.Text, "[1]")
	assert.Contains(t, answer.Text, "[2]")
	require.Len(t, answer.Evidence, 2)
	assert.Equal(t, "news-1", answer.Evidence[0].SourceID)

	require.NotNil(t, answer.Report)
	assert.Equal(t, report.SourceFallback, answer.Report.Source)
	assert.Contains(t, answer.Report.Markdown(), "## Evidence")

	assert.Zero(t, searcher.callCount(), "accepted answers never reach live search")
	assert.NotEmpty(t, answer.QueryID)
}

func TestAsk_NoPathIsHonest(t *testing.T) {
	tests := []struct {
		name     string
		question string
		maxHops  int
	}{
		{"hop bound too tight", scenarioQuestion, 1},
		{"no known entities", "What risk does Globex face from Atlantis?", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{results: []LiveResult{{Snippet: "Globex announced a recall.", SourceURL: "https://example.com/a"}}}
			c := newScenarioClient(t, nil, nil, Options{Searcher: searcher})

			answer, err := c.Ask(context.Background(), tt.question, &AskOptions{MaxHops: tt.maxHops})
			require.NoError(t, err)

			assert.Equal(t, NotFoundMarker, answer.Text)
			assert.Equal(t, OutcomeFallback, answer.Outcome)
			assert.False(t, answer.Grounded())
			assert.Empty(t, answer.Evidence)
			assert.Zero(t, answer.Confidence)
			assert.Equal(t, 1, searcher.callCount())
			assert.Equal(t, searcher.results, answer.LiveResults)
			assert.Equal(t, []State{
				StateInit, StateClassified, StateTraversed, StateRejectedFallback, StateTerminal,
			}, states(answer.Transitions))
			require.NotNil(t, answer.Report)
			assert.Equal(t, NotFoundMarker, answer.Report.Summary)
		})
	}
}

func TestAsk_RejectedDraftFallsBack(t *testing.T) {
	spec := `{"reasoning_type":"risk_chain","start":["CompanyA"],"targets":["CountryX"],` +
		`"relation_types":["DEPENDS_ON","LOCATED_IN"],"max_hops":3,"limit":10,"direction":"any"}`
	llm := &usageClient{replies: map[string]string{
		types.UsageRoute:     "GRAPH",
		types.UsageTraversal: spec,
		types.UsageNarrative: "The moon is made of green cheese and orbits slowly [7].",
	}}
	searcher := &fakeSearcher{}
	c := newScenarioClient(t, nil, llm, Options{Searcher: searcher})

	answer, err := c.Ask(context.Background(), scenarioQuestion, nil)
	require.NoError(t, err)

	assert.Equal(t, router.StageModel, answer.RouteStage)
	assert.Equal(t, NotFoundMarker, answer.Text)
	assert.Equal(t, OutcomeFallback, answer.Outcome)
	assert.Equal(t, 1, searcher.callCount())
	assert.Equal(t, []State{
		StateInit, StateClassified, StateTraversed, StateSynthesized,
		StateValidated, StateRejectedFallback, StateTerminal,
	}, states(answer.Transitions))

	require.NotNil(t, answer.Validation)
	assert.False(t, answer.Validation.Accepted)
	require.NotEmpty(t, answer.Validation.Invalid)
	assert.Equal(t, 7, answer.Validation.Invalid[0].Index)
}

func TestAsk_LiveRoute(t *testing.T) {
	searcher := &fakeSearcher{results: []LiveResult{
		{Snippet: "CompanyA shares fell 4% today.", SourceURL: "https://example.com/1"},
		{Snippet: "  ", SourceURL: "https://example.com/blank"},
		{Snippet: "Analysts cut CompanyA targets.", SourceURL: "https://example.com/2"},
	}}
	c := newScenarioClient(t, nil, nil, Options{Searcher: searcher})

	answer, err := c.Ask(context.Background(), "What is the latest news on CompanyA?", nil)
	require.NoError(t, err)

	assert.Equal(t, router.RouteLive, answer.Route)
	assert.Equal(t, router.StageKeyword, answer.RouteStage)
	assert.Equal(t, OutcomeLive, answer.Outcome)
	assert.Equal(t, []State{StateInit, StateClassified, StateTerminal}, states(answer.Transitions))
	assert.Equal(t, 1, searcher.callCount())
	assert.Equal(t, "- CompanyA shares fell 4% today. [1]\n- Analysts cut CompanyA targets. [2]", answer.Text)
	require.Len(t, answer.Evidence, 2)
	assert.Equal(t, "https://example.com/2", answer.Evidence[1].SourceID)
	assert.Nil(t, answer.Reasoning, "live questions never touch the graph")
}

func TestAsk_LiveSearchUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		searcher LiveSearcher
		question string
		wantIs   error
	}{
		{"fallback without searcher", nil, "What risk does Globex face?", types.ErrLiveSearchUnavailable},
		{"live route without searcher", nil, "latest news on CompanyA", types.ErrLiveSearchUnavailable},
		{"searcher error", &fakeSearcher{err: errors.New("upstream 502")}, "What risk does Globex face?", types.ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newScenarioClient(t, nil, nil, Options{Searcher: tt.searcher})

			answer, err := c.Ask(context.Background(), tt.question, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.ErrorIs(t, err, types.ErrServiceUnavailable)

			var sue *types.ServiceUnavailableError
			require.ErrorAs(t, err, &sue)
			assert.Equal(t, types.CollaboratorSearch, sue.Collaborator)

			require.NotNil(t, answer)
			assert.Equal(t, NotFoundMarker, answer.Text)
			assert.Equal(t, StateTerminal, answer.State)
		})
	}
}

func TestAsk_StoreOutageDegrades(t *testing.T) {
	searcher := &fakeSearcher{}
	store := &brokenStore{MemoryDriver: driver.NewMemoryDriver()}
	c := newScenarioClient(t, store, nil, Options{Searcher: searcher})

	answer, err := c.Ask(context.Background(), scenarioQuestion, nil)
	require.Error(t, err)

	var sue *types.ServiceUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, types.CollaboratorStore, sue.Collaborator)

	assert.Equal(t, NotFoundMarker, answer.Text)
	assert.Equal(t, 1, searcher.callCount())
	assert.Equal(t, StateRejectedFallback, answer.Transitions[len(answer.Transitions)-2].To)
}

func TestAsk_CallerCancellation(t *testing.T) {
	searcher := &fakeSearcher{}
	c := newScenarioClient(t, nil, nil, Options{Searcher: searcher})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer, err := c.Ask(ctx, scenarioQuestion, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, NotFoundMarker, answer.Text)
	assert.Equal(t, StateTerminal, answer.State)
	assert.Zero(t, searcher.callCount())
}

func TestAsk_Concurrent(t *testing.T) {
	c := newScenarioClient(t, nil, nil, Options{Searcher: &fakeSearcher{}})

	var wg sync.WaitGroup
	answers := make([]*Answer, 8)
	for i := range answers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := c.Ask(context.Background(), scenarioQuestion, nil)
			assert.NoError(t, err)
			answers[i] = a
		}(i)
	}
	wg.Wait()

	ids := map[string]struct{}{}
	for _, a := range answers {
		require.NotNil(t, a)
		assert.True(t, a.Grounded())
		ids[a.QueryID] = struct{}{}
	}
	assert.Len(t, ids, len(answers))
}

func TestAsk_WritesAudit(t *testing.T) {
	audit, err := telemetry.NewAuditLog(t.TempDir(), 1, nil)
	require.NoError(t, err)
	c := newScenarioClient(t, nil, nil, Options{Searcher: &fakeSearcher{}, Audit: audit})

	answer, err := c.Ask(context.Background(), scenarioQuestion, nil)
	require.NoError(t, err)

	files := audit.Files()
	require.Len(t, files, 1)
	rows, err := telemetry.ReadAuditFile(files[0])
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, answer.QueryID, row.QueryID)
	assert.Equal(t, scenarioQuestion, row.Question)
	assert.Equal(t, "GRAPH", row.Route)
	assert.Equal(t, "TERMINAL", row.FinalState)
	assert.Len(t, row.Transitions, 6)
	assert.Equal(t, int64(2), row.EvidenceCount)
	assert.Empty(t, row.Error)
}

func TestClient_IngestIdempotent(t *testing.T) {
	c := newScenarioClient(t, nil, nil, Options{})
	ctx := context.Background()

	before, err := c.Store().ListRelationships(ctx)
	require.NoError(t, err)

	res, err := c.Ingest(ctx, scenarioRecord, nil)
	require.NoError(t, err)
	assert.Empty(t, res.EntitiesTouched)
	assert.Empty(t, res.RelationshipsTouched)

	after, err := c.Store().ListRelationships(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(2), c.Stats().Ingest.Records)
}

func TestClient_AliasMerge(t *testing.T) {
	c, err := New(context.Background(), driver.NewMemoryDriver(), nil, Options{})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	records := []ingest.Record{
		ingest.ExtractedRecord{SourceID: "s1", Entities: []ingest.ExtractedEntity{{Name: "NVDA", Type: "Company"}}},
		ingest.ExtractedRecord{SourceID: "s2", Entities: []ingest.ExtractedEntity{{Name: "Nvidia", Type: "Company"}}},
		ingest.ExtractedRecord{SourceID: "s3", Entities: []ingest.ExtractedEntity{{Name: "NVIDIA Corporation", Type: "Company"}}},
	}
	for _, r := range records {
		_, err := c.Ingest(ctx, r, nil)
		require.NoError(t, err)
	}

	entities, err := c.Store().ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, entities[0].Provenance)
}

func TestClient_ResetAndExport(t *testing.T) {
	c := newScenarioClient(t, nil, nil, Options{})
	ctx := context.Background()

	out, err := c.Export(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 4, out.Entities)
	assert.Equal(t, 3, out.Relationships)
	assert.FileExists(t, out.EntitiesFile)
	assert.FileExists(t, out.RelationshipsFile)

	require.NoError(t, c.Reset(ctx))
	entities, err := c.Store().ListEntities(ctx)
	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Empty(t, c.Resolver().Records())

	answer, err := c.Ask(ctx, scenarioQuestion, nil)
	assert.Error(t, err, "no searcher configured")
	assert.Equal(t, NotFoundMarker, answer.Text)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(context.Background(), nil, nil, Options{})
	assert.Error(t, err)
}

func TestNewFromConfig_FailedStartupKeepsErrorLog(t *testing.T) {
	notADir := filepath.Join(t.TempDir(), "aliases")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))

	tests := []struct {
		name   string
		modify func(cfg *config.Config)
	}{
		{"unsupported store", func(cfg *config.Config) { cfg.Database.Driver = "cassandra" }},
		{"alias store unavailable", func(cfg *config.Config) { cfg.Resolver.AliasPath = notADir }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := &config.Config{
				Database:  config.DatabaseConfig{Driver: "memory"},
				Telemetry: config.TelemetryConfig{ParquetPath: dir, AuditBatchSize: 100},
			}
			tt.modify(cfg)

			client, err := NewFromConfig(context.Background(), cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
			require.Error(t, err)
			assert.Nil(t, client)

			files, err := filepath.Glob(filepath.Join(dir, "errors", "query_errors_*.parquet"))
			require.NoError(t, err)
			require.Len(t, files, 1)
			rows, err := parquet.ReadFile[telemetry.ErrorRecord](files[0])
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Failed to start client", rows[0].Message)
		})
	}
}
