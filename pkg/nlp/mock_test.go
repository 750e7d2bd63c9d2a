package nlp

import (
	"context"
	"sync"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// mockClient is a scripted completion backend for tests.
type mockClient struct {
	mu               sync.Mutex
	callCount        int
	structuredCalls  int
	failUntilCall    int
	errorToReturn    error
	responseToReturn *types.Response
	lastTemperature  *float32
	lastMessages     []types.Message
	closed           bool
}

func (m *mockClient) record(ctx context.Context, messages []types.Message) {
	m.callCount++
	m.lastMessages = messages
	if t, ok := TemperatureFromContext(ctx); ok {
		m.lastTemperature = &t
	}
}

func (m *mockClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(ctx, messages)
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	if m.responseToReturn != nil {
		return m.responseToReturn, nil
	}
	return &types.Response{Content: "success"}, nil
}

func (m *mockClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(ctx, messages)
	m.structuredCalls++
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	if m.responseToReturn != nil {
		return m.responseToReturn, nil
	}
	return &types.Response{Content: `{"status": "success"}`}, nil
}

func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
