package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// relLabel is the single stored relationship type. The domain type lives in
// the r.type property so it can be matched as a parameter.
const relLabel = "RELATES_TO"

// Neo4jDriver implements GraphStore for Neo4j databases.
type Neo4jDriver struct {
	client       neo4j.DriverWithContext
	database     string
	queryTimeout time.Duration
}

// NewNeo4jDriver creates a new Neo4j driver instance.
func NewNeo4jDriver(uri, username, password, database string, queryTimeout time.Duration) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:       driver,
		database:     database,
		queryTimeout: queryTimeout,
	}, nil
}

// Provider implements GraphStore.
func (n *Neo4jDriver) Provider() GraphProvider {
	return GraphProviderNeo4j
}

// VerifyConnectivity checks if the driver can connect to the database.
func (n *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

// CreateIndices creates the id constraint and the canonical name index.
func (n *Neo4jDriver) CreateIndices(ctx context.Context) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	indices := []string{
		"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE",
		"CREATE CONSTRAINT entity_canonical_name IF NOT EXISTS FOR (n:Entity) REQUIRE n.canonical_name IS UNIQUE",
		"CREATE INDEX relates_to_type IF NOT EXISTS FOR ()-[r:RELATES_TO]-() ON (r.type)",
	}

	for _, indexQuery := range indices {
		_, err := session.Run(ctx, indexQuery, nil)
		if err != nil {
			if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "An equivalent") {
				return err
			}
		}
	}

	return nil
}

func (n *Neo4jDriver) txConfig() []func(*neo4j.TransactionConfig) {
	if n.queryTimeout <= 0 {
		return nil
	}
	return []func(*neo4j.TransactionConfig){neo4j.WithTxTimeout(n.queryTimeout)}
}

func (n *Neo4jDriver) read(ctx context.Context, query string, params map[string]any) ([]*db.Record, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	}, n.txConfig()...)
	if err != nil {
		return nil, err
	}
	return MustRecordSlice(result, "records")
}

func (n *Neo4jDriver) write(ctx context.Context, query string, params map[string]any) ([]*db.Record, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	}, n.txConfig()...)
	if err != nil {
		return nil, err
	}
	return MustRecordSlice(result, "records")
}

// UpsertEntity implements EntityStore.
func (n *Neo4jDriver) UpsertEntity(ctx context.Context, entity *types.CanonicalEntity) error {
	if entity == nil {
		return fmt.Errorf("cannot upsert nil entity")
	}
	if err := entity.Validate(); err != nil {
		return err
	}

	// a different id holding the name would violate the unique constraint;
	// report it as a conflict rather than a store fault
	owners, err := n.read(ctx, `
		MATCH (n:Entity {canonical_name: $name})
		WHERE n.id <> $id
		RETURN n.id AS id
		LIMIT 1
	`, map[string]any{"name": entity.CanonicalName, "id": entity.ID})
	if err != nil {
		return err
	}
	if len(owners) > 0 {
		owner, _ := owners[0].Get("id")
		return fmt.Errorf("%q owned by %v: %w", entity.CanonicalName, owner, ErrNameConflict)
	}

	props, err := entityToProperties(entity)
	if err != nil {
		return err
	}
	_, err = n.write(ctx, `
		MERGE (n:Entity {id: $id})
		SET n += $properties
	`, map[string]any{"id": entity.ID, "properties": props})
	return err
}

// GetEntity implements EntityStore.
func (n *Neo4jDriver) GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error) {
	records, err := n.read(ctx, `MATCH (n:Entity {id: $id}) RETURN n`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("entity %s: %w", id, types.ErrEntityNotFound)
	}
	return entityFromRecord(records[0], "n")
}

// GetEntityByName implements EntityStore.
func (n *Neo4jDriver) GetEntityByName(ctx context.Context, name string) (*types.CanonicalEntity, error) {
	records, err := n.read(ctx, `MATCH (n:Entity {canonical_name: $name}) RETURN n`, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("entity named %q: %w", name, types.ErrEntityNotFound)
	}
	return entityFromRecord(records[0], "n")
}

// ListEntities implements EntityStore.
func (n *Neo4jDriver) ListEntities(ctx context.Context) ([]*types.CanonicalEntity, error) {
	records, err := n.read(ctx, `MATCH (n:Entity) RETURN n ORDER BY n.canonical_name`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*types.CanonicalEntity, 0, len(records))
	for _, record := range records {
		e, err := entityFromRecord(record, "n")
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UpsertRelationship implements RelationshipStore.
func (n *Neo4jDriver) UpsertRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return fmt.Errorf("cannot upsert nil relationship")
	}
	if err := rel.Validate(); err != nil {
		return err
	}

	props, err := relationshipToProperties(rel)
	if err != nil {
		return err
	}
	records, err := n.write(ctx, `
		MATCH (s:Entity {id: $source_id})
		MATCH (t:Entity {id: $target_id})
		MERGE (s)-[r:`+relLabel+` {type: $type}]->(t)
		SET r += $properties
		RETURN count(r) AS written
	`, map[string]any{
		"source_id":  rel.SourceID,
		"target_id":  rel.TargetID,
		"type":       string(rel.Type),
		"properties": props,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("relationship %s: %w", rel.Key(), types.ErrEntityNotFound)
	}
	written, _ := records[0].Get("written")
	if c, ok := AsInt64(written); !ok || c == 0 {
		return fmt.Errorf("relationship %s: %w", rel.Key(), types.ErrEntityNotFound)
	}
	return nil
}

// GetRelationship implements RelationshipStore.
func (n *Neo4jDriver) GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error) {
	records, err := n.read(ctx, `
		MATCH (s:Entity {id: $source_id})-[r:`+relLabel+` {type: $type}]->(t:Entity {id: $target_id})
		RETURN r, s.id AS source_id, t.id AS target_id
	`, map[string]any{
		"source_id": key.SourceID,
		"target_id": key.TargetID,
		"type":      string(key.Type),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("relationship %s: %w", key, types.ErrRelationshipNotFound)
	}
	return relationshipFromRecord(records[0])
}

// ListRelationships implements RelationshipStore.
func (n *Neo4jDriver) ListRelationships(ctx context.Context) ([]*types.Relationship, error) {
	records, err := n.read(ctx, `
		MATCH (s:Entity)-[r:`+relLabel+`]->(t:Entity)
		RETURN r, s.id AS source_id, t.id AS target_id
		ORDER BY s.id, r.type, t.id
	`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Relationship, 0, len(records))
	for _, record := range records {
		r, err := relationshipFromRecord(record)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// buildPathQuery renders the Cypher for q. Only the validated hop bound and
// the direction arrows are formatted in; everything else is a parameter.
func buildPathQuery(q PathQuery) (string, map[string]any) {
	left, right := "-", "->"
	switch q.Direction {
	case types.DirectionIncoming:
		left, right = "<-", "-"
	case types.DirectionAny:
		left, right = "-", "-"
	}

	query := fmt.Sprintf(`
		MATCH p = (s:Entity)%s[:%s*1..%d]%s(t:Entity)
		WHERE s.id IN $start_ids
		  AND (size($target_ids) = 0 OR t.id IN $target_ids)
		  AND ALL(r IN relationships(p) WHERE size($types) = 0 OR r.type IN $types)
		  AND ALL(i IN range(0, size(nodes(p)) - 2) WHERE NOT nodes(p)[i] IN nodes(p)[i+1..])
		RETURN nodes(p) AS nodes, relationships(p) AS rels
		ORDER BY length(p) ASC
		LIMIT $limit
	`, left, relLabel, q.MaxHops, right)

	targets := q.TargetIDs
	if targets == nil {
		targets = []string{}
	}
	return query, map[string]any{
		"start_ids":  q.StartIDs,
		"target_ids": targets,
		"types":      q.relationTypeStrings(),
		"limit":      int64(q.Limit),
	}
}

// FindPaths implements PathFinder.
func (n *Neo4jDriver) FindPaths(ctx context.Context, q PathQuery) ([]types.ReasoningPath, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query, params := buildPathQuery(q)
	records, err := n.read(ctx, query, params)
	if err != nil {
		return nil, err
	}

	paths := make([]types.ReasoningPath, 0, len(records))
	for _, record := range records {
		p, err := pathFromRecord(record)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	types.RankPaths(paths)
	return paths, nil
}

// Reset implements GraphStore.
func (n *Neo4jDriver) Reset(ctx context.Context) error {
	_, err := n.write(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil)
	return err
}

// Close implements GraphStore.
func (n *Neo4jDriver) Close() error {
	return n.client.Close(context.Background())
}

// Helper methods for converting between domain and Neo4j types. Property
// maps are stored as JSON strings because Neo4j cannot hold nested maps or
// mixed-type lists.

func entityToProperties(e *types.CanonicalEntity) (map[string]any, error) {
	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties of %s: %w", e.ID, err)
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return map[string]any{
		"canonical_name": e.CanonicalName,
		"type":           string(e.Type),
		"aliases":        nonNilStrings(e.Aliases),
		"provenance":     nonNilStrings(e.Provenance),
		"properties":     string(propsJSON),
		"created_at":     createdAt.Format(time.RFC3339),
	}, nil
}

func relationshipToProperties(r *types.Relationship) (map[string]any, error) {
	propsJSON, err := json.Marshal(r.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties of %s: %w", r.Key(), err)
	}
	return map[string]any{
		"weight":       r.Weight,
		"provenance":   nonNilStrings(r.Provenance),
		"observations": int64(r.Observations),
		"properties":   string(propsJSON),
	}, nil
}

func entityFromRecord(record *db.Record, key string) (*types.CanonicalEntity, error) {
	value, _ := record.Get(key)
	node, err := MustDBNode(value, key)
	if err != nil {
		return nil, err
	}
	return entityFromNode(node)
}

func entityFromNode(node dbtype.Node) (*types.CanonicalEntity, error) {
	props := node.Props
	e := &types.CanonicalEntity{}

	var err error
	if e.ID, err = MustString(props["id"], "id"); err != nil {
		return nil, err
	}
	if e.CanonicalName, err = MustString(props["canonical_name"], "canonical_name"); err != nil {
		return nil, err
	}
	if t, ok := AsString(props["type"]); ok {
		e.Type = types.EntityType(t)
	}
	e.Aliases, _ = AsStringList(props["aliases"])
	e.Provenance, _ = AsStringList(props["provenance"])
	if s, ok := AsString(props["created_at"]); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			e.CreatedAt = t
		}
	}
	if s, ok := AsString(props["properties"]); ok && s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &e.Properties); err != nil {
			return nil, fmt.Errorf("decode properties of %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func relationshipFromRecord(record *db.Record) (*types.Relationship, error) {
	value, _ := record.Get("r")
	rel, err := MustDBRelationship(value, "r")
	if err != nil {
		return nil, err
	}
	sourceValue, _ := record.Get("source_id")
	targetValue, _ := record.Get("target_id")
	source, err := MustString(sourceValue, "source_id")
	if err != nil {
		return nil, err
	}
	target, err := MustString(targetValue, "target_id")
	if err != nil {
		return nil, err
	}
	return relationshipFromDB(rel, source, target)
}

func relationshipFromDB(rel dbtype.Relationship, sourceID, targetID string) (*types.Relationship, error) {
	props := rel.Props
	r := &types.Relationship{SourceID: sourceID, TargetID: targetID}

	t, err := MustString(props["type"], "type")
	if err != nil {
		return nil, err
	}
	r.Type = types.RelationType(t)
	if w, ok := types.ToFloat(props["weight"]); ok {
		r.Weight = w
	}
	if o, ok := AsInt64(props["observations"]); ok {
		r.Observations = int(o)
	}
	r.Provenance, _ = AsStringList(props["provenance"])
	if s, ok := AsString(props["properties"]); ok && s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &r.Properties); err != nil {
			return nil, fmt.Errorf("decode properties of %s: %w", r.Key(), err)
		}
	}
	return r, nil
}

func pathFromRecord(record *db.Record) (types.ReasoningPath, error) {
	nodesValue, _ := record.Get("nodes")
	relsValue, _ := record.Get("rels")
	rawNodes, ok := AsAnySlice(nodesValue)
	if !ok {
		return types.ReasoningPath{}, NewTypeConversionError("[]any", fmt.Sprintf("%T", nodesValue), "nodes")
	}
	rawRels, ok := AsAnySlice(relsValue)
	if !ok || len(rawRels) != len(rawNodes)-1 {
		return types.ReasoningPath{}, NewTypeConversionError("[]any", fmt.Sprintf("%T", relsValue), "rels")
	}

	dbNodes := make([]dbtype.Node, len(rawNodes))
	entities := make([]*types.CanonicalEntity, len(rawNodes))
	for i, raw := range rawNodes {
		node, err := MustDBNode(raw, "nodes")
		if err != nil {
			return types.ReasoningPath{}, err
		}
		e, err := entityFromNode(node)
		if err != nil {
			return types.ReasoningPath{}, err
		}
		dbNodes[i], entities[i] = node, e
	}

	hops := make([]types.Hop, len(rawRels))
	for i, raw := range rawRels {
		rel, err := MustDBRelationship(raw, "rels")
		if err != nil {
			return types.ReasoningPath{}, err
		}
		from, to := entities[i], entities[i+1]
		direction := types.DirectionOutgoing
		sourceID, targetID := from.ID, to.ID
		if rel.StartElementId != dbNodes[i].ElementId {
			direction = types.DirectionIncoming
			sourceID, targetID = to.ID, from.ID
		}
		r, err := relationshipFromDB(rel, sourceID, targetID)
		if err != nil {
			return types.ReasoningPath{}, err
		}
		hops[i] = types.Hop{From: from, Relationship: r, To: to, Direction: direction}
	}
	return types.ReasoningPath{Hops: hops}, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
