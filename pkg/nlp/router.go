package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/soundprediction/groundgraph/pkg/config"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// RouterClient sends each pipeline stage to the provider its rule names, so a
// small model can classify routes while a larger one drafts narratives.
type RouterClient struct {
	providers     map[string]Client
	rules         []config.RouterRule
	defaultClient Client
	logger        *slog.Logger
}

// NewRouterClient creates a new router client
func NewRouterClient(providers map[string]Client, rules []config.RouterRule, logger *slog.Logger) (*RouterClient, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaultClient, ok := providers["default"]
	if !ok {
		// deterministic pick: lowest provider id
		ids := make([]string, 0, len(providers))
		for id := range providers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		defaultClient = providers[ids[0]]
	}

	for _, rule := range rules {
		if _, ok := providers[rule.Provider]; !ok {
			return nil, fmt.Errorf("router rule for %q references unknown provider %q", rule.Usage, rule.Provider)
		}
	}

	return &RouterClient{
		providers:     providers,
		rules:         rules,
		defaultClient: defaultClient,
		logger:        logger,
	}, nil
}

// getClientForContext determines which client to use based on context
func (r *RouterClient) getClientForContext(ctx context.Context) (Client, string, Client) {
	usage := UsageFromContext(ctx)
	if usage == "" {
		return r.defaultClient, "default", nil
	}

	for _, rule := range r.rules {
		if strings.EqualFold(rule.Usage, usage) {
			primary := r.providers[rule.Provider]
			var fallback Client
			if rule.Fallback != "" {
				fallback = r.providers[rule.Fallback]
			}
			return primary, rule.Provider, fallback
		}
	}

	return r.defaultClient, "default", nil
}

// Chat implements Client with routing and fallback
func (r *RouterClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	primary, id, fallback := r.getClientForContext(ctx)

	resp, err := primary.Chat(ctx, messages)
	if err != nil && fallback != nil && ctx.Err() == nil {
		r.logger.Warn("Routing fallback triggered", "provider", id, "usage", UsageFromContext(ctx), "error", err)
		return fallback.Chat(ctx, messages)
	}
	return resp, err
}

// ChatWithStructuredOutput implements Client with routing and fallback
func (r *RouterClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	primary, id, fallback := r.getClientForContext(ctx)

	resp, err := primary.ChatWithStructuredOutput(ctx, messages, schema)
	if err != nil && fallback != nil && ctx.Err() == nil {
		r.logger.Warn("Routing fallback triggered", "provider", id, "usage", UsageFromContext(ctx), "error", err)
		return fallback.ChatWithStructuredOutput(ctx, messages, schema)
	}
	return resp, err
}

// Close closes all providers
func (r *RouterClient) Close() error {
	var errs []string
	for id, provider := range r.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("errors closing providers: %s", strings.Join(errs, "; "))
	}
	return nil
}
