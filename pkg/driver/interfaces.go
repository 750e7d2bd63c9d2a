package driver

import (
	"context"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// This file defines focused interfaces. Consumers should depend on the
// smallest one that meets their needs; GraphStore composes them for the
// drivers themselves.

// EntityStore provides operations for canonical entities.
type EntityStore interface {
	// UpsertEntity creates or replaces an entity by id. Returns
	// ErrNameConflict if another id already owns the canonical name.
	UpsertEntity(ctx context.Context, entity *types.CanonicalEntity) error

	// GetEntity returns types.ErrEntityNotFound when id is unknown.
	GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error)

	// GetEntityByName is an exact, indexed lookup by canonical name.
	GetEntityByName(ctx context.Context, name string) (*types.CanonicalEntity, error)

	// ListEntities returns all entities ordered by canonical name.
	ListEntities(ctx context.Context) ([]*types.CanonicalEntity, error)
}

// RelationshipStore provides operations for typed relationships.
type RelationshipStore interface {
	// UpsertRelationship creates or replaces a relationship by key. Both
	// endpoints must exist, otherwise types.ErrEntityNotFound is returned.
	UpsertRelationship(ctx context.Context, rel *types.Relationship) error

	// GetRelationship returns types.ErrRelationshipNotFound when the key is unknown.
	GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error)

	// ListRelationships returns all relationships ordered by key.
	ListRelationships(ctx context.Context) ([]*types.Relationship, error)
}

// PathFinder executes bounded, read-only path queries.
type PathFinder interface {
	// FindPaths returns simple paths matching q, shortest first, at most
	// q.Limit of them and none longer than q.MaxHops.
	FindPaths(ctx context.Context, q PathQuery) ([]types.ReasoningPath, error)
}

// GraphStore is the full graph storage capability.
type GraphStore interface {
	EntityStore
	RelationshipStore
	PathFinder

	// Provider returns the backing store kind.
	Provider() GraphProvider

	// Reset removes every entity and relationship. It is the only
	// destructive operation and is never called by ingestion.
	Reset(ctx context.Context) error

	// Close releases all resources held by the driver.
	Close() error
}
