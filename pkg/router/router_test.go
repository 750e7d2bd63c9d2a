package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/groundgraph/pkg/nlp"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// scriptedClient answers every call with the same content or error.
type scriptedClient struct {
	mu          sync.Mutex
	content     string
	err         error
	delay       time.Duration
	calls       int
	temperature float32
	usage       string
}

func (s *scriptedClient) Chat(ctx context.Context, _ []types.Message) (*types.Response, error) {
	s.mu.Lock()
	s.calls++
	s.temperature, _ = nlp.TemperatureFromContext(ctx)
	s.usage = nlp.UsageFromContext(ctx)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &types.Response{Content: s.content}, nil
}

func (s *scriptedClient) ChatWithStructuredOutput(ctx context.Context, msgs []types.Message, _ any) (*types.Response, error) {
	return s.Chat(ctx, msgs)
}

func (s *scriptedClient) Close() error { return nil }

func TestClassify_KeywordPrefilter(t *testing.T) {
	client := &scriptedClient{content: "GRAPH"}
	r := New(client, Options{})

	tests := []struct {
		question string
		keyword  string
	}{
		{"What is NVIDIA's latest GPU?", "latest"},
		{"Any breaking news on TSMC?", "news"},
		{"TODAY: how did markets react?", "today"},
		{"오늘 Nvidia 뉴스는?", "뉴스"},
		{"삼성전자 주가는?", "주가"},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			d := r.Classify(context.Background(), tt.question)
			assert.Equal(t, RouteLive, d.Route)
			assert.Equal(t, StageKeyword, d.Stage)
			kw, ok := r.MatchKeyword(tt.question)
			require.True(t, ok)
			if tt.keyword != "뉴스" {
				assert.Equal(t, tt.keyword, kw)
			}
		})
	}
	assert.Zero(t, client.calls)
}

func TestMatchKeyword_WordBoundaries(t *testing.T) {
	r := New(nil, Options{Keywords: []string{"now", "current"}})

	tests := []struct {
		question string
		want     bool
	}{
		{"What do we know about TSMC?", false},
		{"Is there a currently open risk?", false},
		{"Who supplies it now?", true},
		{"current exposure to Taiwan", true},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			_, ok := r.MatchKeyword(tt.question)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestClassify_ModelStage(t *testing.T) {
	tests := []struct {
		name      string
		client    *scriptedClient
		wantRoute Route
		wantStage Stage
	}{
		{"graph label", &scriptedClient{content: "GRAPH"}, RouteGraph, StageModel},
		{"live label with noise", &scriptedClient{content: "Answer: live_search."}, RouteLive, StageModel},
		{"unparsable", &scriptedClient{content: "I am not sure"}, RouteGraph, StageDefault},
		{"both labels", &scriptedClient{content: "GRAPH or LIVE_SEARCH"}, RouteGraph, StageDefault},
		{"backend error", &scriptedClient{err: errors.New("503")}, RouteGraph, StageDefault},
		{"timeout", &scriptedClient{content: "LIVE_SEARCH", delay: time.Second}, RouteGraph, StageDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.client, Options{Timeout: 50 * time.Millisecond})
			d := r.Classify(context.Background(), "Which suppliers does CompanyA depend on?")
			assert.Equal(t, tt.wantRoute, d.Route)
			assert.Equal(t, tt.wantStage, d.Stage)
			assert.Equal(t, 1, tt.client.calls)
			assert.Equal(t, float32(0), tt.client.temperature)
			assert.Equal(t, types.UsageRoute, tt.client.usage)
		})
	}
}

func TestClassify_NoClient(t *testing.T) {
	d := New(nil, Options{}).Classify(context.Background(), "Who competes with AMD?")
	assert.Equal(t, RouteGraph, d.Route)
	assert.Equal(t, StageDefault, d.Stage)
}

func TestClassify_Reproducible(t *testing.T) {
	client := &scriptedClient{content: "LIVE_SEARCH"}
	r := New(client, Options{})
	first := r.Classify(context.Background(), "How exposed is AMD to Taiwan?")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Classify(context.Background(), "How exposed is AMD to Taiwan?"))
	}
}
