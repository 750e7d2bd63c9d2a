package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundprediction/groundgraph/pkg/config"
)

// NewGraphStore opens the store named by cfg.Database.Driver and wraps it in
// a circuit breaker when enabled.
func NewGraphStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (GraphStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var store GraphStore
	switch GraphProvider(cfg.Database.Driver) {
	case GraphProviderMemory, "":
		store = NewMemoryDriver()
	case GraphProviderNeo4j:
		neo, err := NewNeo4jDriver(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password,
			cfg.Database.Database, cfg.Database.QueryTimeout)
		if err != nil {
			return nil, err
		}
		if err := neo.VerifyConnectivity(ctx); err != nil {
			_ = neo.Close()
			return nil, fmt.Errorf("neo4j at %s unreachable: %w", cfg.Database.URI, err)
		}
		if err := neo.CreateIndices(ctx); err != nil {
			_ = neo.Close()
			return nil, fmt.Errorf("failed to create neo4j indices: %w", err)
		}
		store = neo
	default:
		return nil, fmt.Errorf("unsupported graph store %q", cfg.Database.Driver)
	}
	logger.Info("Graph store ready", "provider", store.Provider())

	if cfg.CircuitBreaker.Enabled {
		return NewCircuitBreakerStore(store, cfg.CircuitBreaker, logger), nil
	}
	return store, nil
}
