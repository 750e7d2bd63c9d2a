package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soundprediction/groundgraph/pkg/types"
)

// maxFrontier caps the partial paths kept between BFS levels.
const maxFrontier = 10000

// MemoryDriver is an in-process GraphStore. It is the default store and the
// one used in tests; every read and write returns or keeps deep copies.
type MemoryDriver struct {
	mu       sync.RWMutex
	entities map[string]*types.CanonicalEntity
	byName   map[string]string
	rels     map[types.RelationshipKey]*types.Relationship
	out      map[string][]types.RelationshipKey
	in       map[string][]types.RelationshipKey
}

// NewMemoryDriver creates an empty in-memory store.
func NewMemoryDriver() *MemoryDriver {
	m := &MemoryDriver{}
	m.init()
	return m
}

func (m *MemoryDriver) init() {
	m.entities = make(map[string]*types.CanonicalEntity)
	m.byName = make(map[string]string)
	m.rels = make(map[types.RelationshipKey]*types.Relationship)
	m.out = make(map[string][]types.RelationshipKey)
	m.in = make(map[string][]types.RelationshipKey)
}

// Provider implements GraphStore.
func (m *MemoryDriver) Provider() GraphProvider {
	return GraphProviderMemory
}

// UpsertEntity implements EntityStore.
func (m *MemoryDriver) UpsertEntity(ctx context.Context, entity *types.CanonicalEntity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("cannot upsert nil entity")
	}
	if err := entity.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.byName[entity.CanonicalName]; ok && owner != entity.ID {
		return fmt.Errorf("%q owned by %s: %w", entity.CanonicalName, owner, ErrNameConflict)
	}
	if prev, ok := m.entities[entity.ID]; ok && prev.CanonicalName != entity.CanonicalName {
		delete(m.byName, prev.CanonicalName)
	}
	m.entities[entity.ID] = entity.Clone()
	m.byName[entity.CanonicalName] = entity.ID
	return nil
}

// GetEntity implements EntityStore.
func (m *MemoryDriver) GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, types.ErrEntityNotFound)
	}
	return e.Clone(), nil
}

// GetEntityByName implements EntityStore.
func (m *MemoryDriver) GetEntityByName(ctx context.Context, name string) (*types.CanonicalEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("entity named %q: %w", name, types.ErrEntityNotFound)
	}
	return m.entities[id].Clone(), nil
}

// ListEntities implements EntityStore.
func (m *MemoryDriver) ListEntities(ctx context.Context) ([]*types.CanonicalEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.CanonicalEntity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out, nil
}

// UpsertRelationship implements RelationshipStore.
func (m *MemoryDriver) UpsertRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rel == nil {
		return fmt.Errorf("cannot upsert nil relationship")
	}
	if err := rel.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range []string{rel.SourceID, rel.TargetID} {
		if _, ok := m.entities[id]; !ok {
			return fmt.Errorf("endpoint %s: %w", id, types.ErrEntityNotFound)
		}
	}

	key := rel.Key()
	if _, exists := m.rels[key]; !exists {
		m.out[key.SourceID] = insertKey(m.out[key.SourceID], key)
		m.in[key.TargetID] = insertKey(m.in[key.TargetID], key)
	}
	m.rels[key] = rel.Clone()
	return nil
}

// GetRelationship implements RelationshipStore.
func (m *MemoryDriver) GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rels[key]
	if !ok {
		return nil, fmt.Errorf("relationship %s: %w", key, types.ErrRelationshipNotFound)
	}
	return r.Clone(), nil
}

// ListRelationships implements RelationshipStore.
func (m *MemoryDriver) ListRelationships(ctx context.Context) ([]*types.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Relationship, 0, len(m.rels))
	for _, r := range m.rels {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

type step struct {
	key   types.RelationshipKey
	other string
	dir   types.Direction
}

// steps lists the moves available from id. Caller must hold the read lock.
func (m *MemoryDriver) steps(id string, q PathQuery) []step {
	var out []step
	if q.Direction != types.DirectionIncoming {
		for _, k := range m.out[id] {
			if q.allowsType(k.Type) {
				out = append(out, step{key: k, other: k.TargetID, dir: types.DirectionOutgoing})
			}
		}
	}
	if q.Direction != types.DirectionOutgoing {
		for _, k := range m.in[id] {
			if q.allowsType(k.Type) {
				out = append(out, step{key: k, other: k.SourceID, dir: types.DirectionIncoming})
			}
		}
	}
	return out
}

// FindPaths implements PathFinder with a level-by-level breadth-first
// expansion over simple paths.
func (m *MemoryDriver) FindPaths(ctx context.Context, q PathQuery) ([]types.ReasoningPath, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := make(map[string]bool, len(q.TargetIDs))
	for _, id := range q.TargetIDs {
		targets[id] = true
	}

	snapshot := make(map[string]*types.CanonicalEntity)
	entity := func(id string) *types.CanonicalEntity {
		if e, ok := snapshot[id]; ok {
			return e
		}
		e := m.entities[id].Clone()
		snapshot[id] = e
		return e
	}

	type partial struct {
		nodes []string
		hops  []types.Hop
	}

	starts := append([]string(nil), q.StartIDs...)
	sort.Strings(starts)
	var frontier []partial
	for i, id := range starts {
		if i > 0 && starts[i-1] == id {
			continue
		}
		if _, ok := m.entities[id]; ok {
			frontier = append(frontier, partial{nodes: []string{id}})
		}
	}

	var results []types.ReasoningPath
	for depth := 1; depth <= q.MaxHops && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []partial
		var level []types.ReasoningPath
		for _, p := range frontier {
			last := p.nodes[len(p.nodes)-1]
			for _, s := range m.steps(last, q) {
				if containsID(p.nodes, s.other) {
					continue
				}
				hop := types.Hop{
					From:         entity(last),
					Relationship: m.rels[s.key].Clone(),
					To:           entity(s.other),
					Direction:    s.dir,
				}
				np := partial{
					nodes: append(append(make([]string, 0, len(p.nodes)+1), p.nodes...), s.other),
					hops:  append(append(make([]types.Hop, 0, len(p.hops)+1), p.hops...), hop),
				}
				if len(targets) == 0 || targets[s.other] {
					level = append(level, types.ReasoningPath{Hops: np.hops})
				}
				next = append(next, np)
			}
		}

		types.RankPaths(level)
		results = append(results, level...)
		if len(results) >= q.Limit {
			return results[:q.Limit], nil
		}
		if len(next) > maxFrontier {
			next = next[:maxFrontier]
		}
		frontier = next
	}
	return results, nil
}

// Reset implements GraphStore.
func (m *MemoryDriver) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return nil
}

// Close implements GraphStore.
func (m *MemoryDriver) Close() error {
	return nil
}

func insertKey(keys []types.RelationshipKey, k types.RelationshipKey) []types.RelationshipKey {
	i := sort.Search(len(keys), func(i int) bool { return keys[i].String() >= k.String() })
	keys = append(keys, types.RelationshipKey{})
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	return keys
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
