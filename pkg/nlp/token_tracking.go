package nlp

import (
	"context"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// UsageRecorder receives token counts reported by a backend.
// *metrics.Metrics implements it.
type UsageRecorder interface {
	RecordTokens(stage, model string, promptTokens, completionTokens int)
}

// TokenTrackingClient wraps a Client to track usage per pipeline stage
type TokenTrackingClient struct {
	client   Client
	recorder UsageRecorder
}

// NewTokenTrackingClient creates a wrapper client
func NewTokenTrackingClient(client Client, recorder UsageRecorder) *TokenTrackingClient {
	return &TokenTrackingClient{
		client:   client,
		recorder: recorder,
	}
}

// Chat implements Client
func (c *TokenTrackingClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	resp, err := c.client.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	c.track(ctx, resp)
	return resp, nil
}

// ChatWithStructuredOutput implements Client
func (c *TokenTrackingClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	resp, err := c.client.ChatWithStructuredOutput(ctx, messages, schema)
	if err != nil {
		return nil, err
	}
	c.track(ctx, resp)
	return resp, nil
}

// Close implements Client
func (c *TokenTrackingClient) Close() error {
	return c.client.Close()
}

func (c *TokenTrackingClient) track(ctx context.Context, resp *types.Response) {
	if c.recorder == nil || resp == nil || resp.TokensUsed == nil {
		return
	}

	// Use model from response if available
	model := resp.Model
	if model == "" {
		model = "unknown"
	}
	stage := UsageFromContext(ctx)
	if stage == "" {
		stage = "unspecified"
	}
	c.recorder.RecordTokens(stage, model, resp.TokensUsed.PromptTokens, resp.TokensUsed.CompletionTokens)
}
