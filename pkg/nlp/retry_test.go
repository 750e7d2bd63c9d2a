package nlp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/groundgraph/pkg/types"
)

func fastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        maxRetries,
		InitialDelay:      5 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

// Each stage of answering a question goes through Complete; a flaky backend
// must not change what the stage sees once a call succeeds.
func TestRetryClient_AnswerStages(t *testing.T) {
	tests := []struct {
		name       string
		usage      string
		prompt     Prompt
		constraint OutputConstraint
		reply      string
		failures   int
		failWith   error
		want       string
		wantCalls  int
		structured bool
	}{
		{
			name:       "route label after a gateway error",
			usage:      types.UsageRoute,
			prompt:     Prompt{System: "Route the question.", User: "What is NVIDIA's share price today?"},
			constraint: LabelOutput("GRAPH", "LIVE_SEARCH"),
			reply:      "live_search.",
			failures:   1,
			failWith:   errors.New("502 bad gateway"),
			want:       "LIVE_SEARCH",
			wantCalls:  2,
		},
		{
			name:       "traversal spec after rate limiting",
			usage:      types.UsageTraversal,
			prompt:     Prompt{System: "Plan a traversal.", User: "What risk does CompanyA face from CountryX?"},
			constraint: JSONOutput(),
			reply:      "```json\n{\"reasoning_type\":\"risk_chain\",\"start\":[\"CompanyA\"],\"targets\":[\"CountryX\"],\"max_hops\":3,}\n```",
			failures:   2,
			failWith:   NewRateLimitError("traversal planner throttled"),
			want:       `{"reasoning_type":"risk_chain","start":["CompanyA"],"targets":["CountryX"],"max_hops":3}`,
			wantCalls:  3,
			structured: true,
		},
		{
			name:       "narrative on the first attempt",
			usage:      types.UsageNarrative,
			prompt:     Prompt{System: "Explain the paths.", User: "[1] CompanyA DEPENDS_ON SupplierB"},
			constraint: TextOutput(),
			reply:      "CompanyA depends on SupplierB [1].",
			want:       "CompanyA depends on SupplierB [1].",
			wantCalls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockClient{
				failUntilCall:    tt.failures,
				errorToReturn:    tt.failWith,
				responseToReturn: &types.Response{Content: tt.reply},
			}
			client := NewRetryClient(mock, fastRetry(2), nil)

			ctx := context.WithValue(context.Background(), types.ContextKeyUsage, tt.usage)
			out, err := Complete(ctx, client, tt.prompt, 0, tt.constraint)
			require.NoError(t, err)

			if tt.constraint.Kind == ConstraintJSON {
				assert.JSONEq(t, tt.want, out)
			} else {
				assert.Equal(t, tt.want, out)
			}
			assert.Equal(t, tt.wantCalls, mock.callCount)
			if tt.structured {
				assert.Equal(t, tt.wantCalls, mock.structuredCalls)
			}
			require.Len(t, mock.lastMessages, 2)
			assert.Equal(t, tt.prompt.User, mock.lastMessages[1].Content)
		})
	}
}

func TestRetryClient_ReportBackendDown(t *testing.T) {
	down := errors.New("503 service unavailable")
	mock := &mockClient{failUntilCall: 100, errorToReturn: down}
	client := NewRetryClient(mock, fastRetry(2), nil)

	_, err := Complete(context.Background(), client, Prompt{System: "Write the report.", User: "answer"}, 0, JSONOutput())
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, err, types.ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, mock.callCount, "one call plus two retries")
}

func TestRetryClient_GivesUpImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", errors.New("400 bad request: unknown model")},
		{"auth", errors.New("401 unauthorized")},
		{"refusal", NewRefusalError("cannot plan a traversal for this question")},
		{"caller deadline", fmt.Errorf("narrative: %w", context.DeadlineExceeded)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockClient{failUntilCall: 100, errorToReturn: tt.err}
			client := NewRetryClient(mock, fastRetry(3), nil)

			_, err := client.Chat(context.Background(), []types.Message{{Role: RoleUser, Content: "Which suppliers does CompanyA depend on?"}})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, mock.callCount)
		})
	}
}

func TestRetryClient_StageTimeoutStopsBackoff(t *testing.T) {
	mock := &mockClient{failUntilCall: 100, errorToReturn: errors.New("500 internal server error")}
	client := NewRetryClient(mock, &RetryConfig{
		MaxRetries:        5,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Complete(ctx, client, Prompt{System: "Route the question.", User: "Latest CountryX tariffs?"}, 0, LabelOutput("GRAPH", "LIVE_SEARCH"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, 1, mock.callCount)
}

func TestRetryClient_Backoff(t *testing.T) {
	client := NewRetryClient(nil, &RetryConfig{
		MaxRetries:        5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}, nil)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
	}
	for i, d := range want {
		assert.Equal(t, d, client.calculateDelay(i+1), "retry %d", i+1)
	}
}

func TestNewRetryClient_Defaults(t *testing.T) {
	client := NewRetryClient(&mockClient{}, &RetryConfig{MaxRetries: -1}, nil)
	assert.Equal(t, 0, client.config.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, client.config.InitialDelay)
	assert.Equal(t, 10*time.Second, client.config.MaxDelay)
	assert.Equal(t, 2.0, client.config.BackoffMultiplier)

	assert.Equal(t, &RetryConfig{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}, DefaultRetryConfig())
}

// statusError carries an HTTP status the way SDK errors do.
type statusError int

func (e statusError) Error() string       { return fmt.Sprintf("completion backend returned status %d", int(e)) }
func (e statusError) HTTPStatusCode() int { return int(e) }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"server error", errors.New("500 internal server error"), true},
		{"gateway timeout", errors.New("504 gateway timeout"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"rate limit type", NewRateLimitError(), true},
		{"rate limit text", errors.New("429 too many requests"), true},
		{"bad request", errors.New("400 bad request"), false},
		{"not found", errors.New("404 model not found"), false},
		{"refusal", NewRefusalError("refused"), false},
		{"caller cancel", context.Canceled, false},
		{"caller deadline", fmt.Errorf("route: %w", context.DeadlineExceeded), false},
		{"status 503", statusError(503), true},
		{"status 429", statusError(429), true},
		{"status 422", statusError(422), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.err))
		})
	}
}
