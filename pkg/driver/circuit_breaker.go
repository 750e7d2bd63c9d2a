package driver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/groundgraph/pkg/config"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// CircuitBreakerStore wraps a GraphStore with circuit breaking. Store faults
// come back as types.ServiceUnavailableError; lookup misses and validation
// errors pass through untouched and do not count against the breaker.
type CircuitBreakerStore struct {
	store GraphStore
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitBreakerStore creates a new circuit breaker store
func NewCircuitBreakerStore(store GraphStore, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "graph-store-" + string(store.Provider()),
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.ReadyToTripRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isCallerError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &CircuitBreakerStore{
		store: store,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *CircuitBreakerStore) execute(op string, fn func() (any, error)) (any, error) {
	result, err := c.cb.Execute(fn)
	if err != nil {
		if isCallerError(err) {
			return nil, err
		}
		return nil, types.NewServiceUnavailableError(types.CollaboratorStore, op, err)
	}
	return result, nil
}

// Provider implements GraphStore
func (c *CircuitBreakerStore) Provider() GraphProvider {
	return c.store.Provider()
}

// UpsertEntity implements GraphStore
func (c *CircuitBreakerStore) UpsertEntity(ctx context.Context, entity *types.CanonicalEntity) error {
	_, err := c.execute("upsert_entity", func() (any, error) {
		return nil, c.store.UpsertEntity(ctx, entity)
	})
	return err
}

// GetEntity implements GraphStore
func (c *CircuitBreakerStore) GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error) {
	res, err := c.execute("get_entity", func() (any, error) {
		return c.store.GetEntity(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.CanonicalEntity), nil
}

// GetEntityByName implements GraphStore
func (c *CircuitBreakerStore) GetEntityByName(ctx context.Context, name string) (*types.CanonicalEntity, error) {
	res, err := c.execute("get_entity_by_name", func() (any, error) {
		return c.store.GetEntityByName(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.CanonicalEntity), nil
}

// ListEntities implements GraphStore
func (c *CircuitBreakerStore) ListEntities(ctx context.Context) ([]*types.CanonicalEntity, error) {
	res, err := c.execute("list_entities", func() (any, error) {
		return c.store.ListEntities(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*types.CanonicalEntity), nil
}

// UpsertRelationship implements GraphStore
func (c *CircuitBreakerStore) UpsertRelationship(ctx context.Context, rel *types.Relationship) error {
	_, err := c.execute("upsert_relationship", func() (any, error) {
		return nil, c.store.UpsertRelationship(ctx, rel)
	})
	return err
}

// GetRelationship implements GraphStore
func (c *CircuitBreakerStore) GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error) {
	res, err := c.execute("get_relationship", func() (any, error) {
		return c.store.GetRelationship(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.Relationship), nil
}

// ListRelationships implements GraphStore
func (c *CircuitBreakerStore) ListRelationships(ctx context.Context) ([]*types.Relationship, error) {
	res, err := c.execute("list_relationships", func() (any, error) {
		return c.store.ListRelationships(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*types.Relationship), nil
}

// FindPaths implements GraphStore
func (c *CircuitBreakerStore) FindPaths(ctx context.Context, q PathQuery) ([]types.ReasoningPath, error) {
	res, err := c.execute("find_paths", func() (any, error) {
		return c.store.FindPaths(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return res.([]types.ReasoningPath), nil
}

// Reset implements GraphStore
func (c *CircuitBreakerStore) Reset(ctx context.Context) error {
	_, err := c.execute("reset", func() (any, error) {
		return nil, c.store.Reset(ctx)
	})
	return err
}

// Close implements GraphStore
func (c *CircuitBreakerStore) Close() error {
	return c.store.Close()
}

// State returns the breaker state, for health reporting.
func (c *CircuitBreakerStore) State() gobreaker.State {
	return c.cb.State()
}
