package nlp

import (
	"context"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// Client defines the interface for language model operations.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, messages []types.Message) (*types.Response, error)

	// ChatWithStructuredOutput sends a chat completion request with structured output.
	ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error)

	// Close cleans up any resources.
	Close() error
}

const (
	// RoleSystem represents a system message.
	RoleSystem types.Role = "system"
	// RoleUser represents a user message.
	RoleUser types.Role = "user"
	// RoleAssistant represents an assistant message.
	RoleAssistant types.Role = "assistant"
)

// Config holds configuration for a single completion backend.
type Config struct {
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"` // Custom base URL for OpenAI-compatible services
}

// NewMessage creates a new message with the specified role and content.
func NewMessage(role types.Role, content string) types.Message {
	return types.Message{
		Role:    role,
		Content: content,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) types.Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) types.Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) types.Message {
	return NewMessage(RoleAssistant, content)
}

// WithTemperature returns a context that asks backends to sample at t for
// calls made with it.
func WithTemperature(ctx context.Context, t float32) context.Context {
	return context.WithValue(ctx, types.ContextKeyTemperature, t)
}

// TemperatureFromContext returns the per-call temperature, if any.
func TemperatureFromContext(ctx context.Context) (float32, bool) {
	t, ok := ctx.Value(types.ContextKeyTemperature).(float32)
	return t, ok
}

// WithUsage tags the calls made with ctx with a pipeline stage for routing.
func WithUsage(ctx context.Context, usage string) context.Context {
	return context.WithValue(ctx, types.ContextKeyUsage, usage)
}

// UsageFromContext returns the pipeline stage tag, or "".
func UsageFromContext(ctx context.Context) string {
	u, _ := ctx.Value(types.ContextKeyUsage).(string)
	return u
}
