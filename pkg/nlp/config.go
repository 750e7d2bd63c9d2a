package nlp

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/soundprediction/groundgraph/pkg/config"
)

// Default configuration values
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.0
)

// NewClientFromConfig builds the completion stack described by cfg: one
// OpenAI-compatible client per configured model, each wrapped with token
// tracking, bounded retries and a circuit breaker, behind a RouterClient that
// picks a model per pipeline stage.
func NewClientFromConfig(cfg *config.Config, recorder UsageRecorder, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.NLP.Models) == 0 {
		return nil, fmt.Errorf("no nlp models configured")
	}

	ids := make([]string, 0, len(cfg.NLP.Models))
	for id := range cfg.NLP.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	providers := make(map[string]Client, len(ids))
	for _, id := range ids {
		modelCfg := cfg.NLP.Models[id]
		if modelCfg.Provider != "" && modelCfg.Provider != "openai" {
			return nil, fmt.Errorf("model %q: unsupported provider %q", id, modelCfg.Provider)
		}

		temperature := modelCfg.Temperature
		maxTokens := modelCfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = DefaultMaxTokens
		}

		base, err := NewOpenAIClient(modelCfg.APIKey, Config{
			Model:       modelCfg.Model,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			BaseURL:     modelCfg.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", id, err)
		}

		var client Client = NewTokenTrackingClient(base, recorder)

		retry := DefaultRetryConfig()
		retry.MaxRetries = cfg.NLP.MaxRetries
		client = NewRetryClient(client, retry, logger)

		if cfg.CircuitBreaker.Enabled {
			client = NewCircuitBreakerClient(client, cfg.CircuitBreaker, "completion-"+id, logger)
		}

		providers[id] = client
		logger.Debug("Completion backend configured", "id", id, "model", modelCfg.Model, "base_url", modelCfg.BaseURL)
	}

	return NewRouterClient(providers, cfg.NLP.RouterRules, logger)
}
