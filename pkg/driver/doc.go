// Package driver provides the graph store used for canonical entities and
// their relationships.
//
// The GraphStore interface is composed from EntityStore, RelationshipStore
// and PathFinder; consumers should depend on the smallest of these that
// meets their needs.
//
// # Supported Stores
//
//   - MemoryDriver: in-process maps, the default and the test store
//   - Neo4jDriver: entities are (:Entity {id}) nodes, relationships are
//     [:RELATES_TO {type}] edges so the domain type can be matched as a
//     query parameter
//
// # Path Queries
//
// FindPaths takes a PathQuery, which is pure data: start and target ids, an
// allow-list of relationship types, a hop bound and a result limit. Stores
// validate it against MaxQueryHops and MaxQueryLimit before running it, and
// only ever return simple paths.
//
// # Fault Isolation
//
// CircuitBreakerStore wraps any store with a gobreaker circuit breaker and
// turns store faults into types.ServiceUnavailableError.
//
// # Type Helpers
//
// type_helpers.go holds safe conversions for Neo4j result values.
package driver
