package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/soundprediction/groundgraph/pkg/checkpoint"
	"github.com/soundprediction/groundgraph/pkg/driver"
	"github.com/soundprediction/groundgraph/pkg/metrics"
	"github.com/soundprediction/groundgraph/pkg/resolver"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/soundprediction/groundgraph/pkg/utils"
)

var (
	ErrNoMapping         = errors.New("structured record requires a source mapping")
	ErrNoEntityName      = errors.New("record has no entity name")
	ErrEmptyRecord       = errors.New("record has no entities")
	ErrUnsupportedRecord = errors.New("unsupported record type")
)

const (
	DefaultConcurrency = 4
	lockStripes        = 256
)

// Store is the part of the graph store that ingestion writes to.
type Store interface {
	driver.EntityStore
	driver.RelationshipStore
}

// Options configures an Integrator.
type Options struct {
	CombineRule   string
	DefaultWeight float64
	Concurrency   int
	// Checkpoints enables resumable batches. Nil disables checkpointing.
	Checkpoints *checkpoint.CheckpointManager
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Stats counts ingestion activity since the integrator was created.
type Stats struct {
	Records            int64
	PartialRecords     int64
	FailedRecords      int64
	EntityWrites       int64
	RelationshipWrites int64
	Conflicts          int64
}

// Integrator merges records into the graph. Writes to the same entity or
// relationship key are serialized; everything else runs in parallel.
type Integrator struct {
	store         Store
	resolver      *resolver.Resolver
	rule          types.CombineRule
	defaultWeight float64
	concurrency   int
	locks         *keyLocks
	checkpoints   *checkpoint.CheckpointManager
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time

	records      atomic.Int64
	partial      atomic.Int64
	failed       atomic.Int64
	entityWrites atomic.Int64
	relWrites    atomic.Int64
	conflicts    atomic.Int64
}

// New creates an integrator writing to store through res.
func New(store Store, res *resolver.Resolver, opts Options) *Integrator {
	if opts.DefaultWeight <= 0 {
		opts.DefaultWeight = 1.0
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Integrator{
		store:         store,
		resolver:      res,
		rule:          types.ParseCombineRule(opts.CombineRule),
		defaultWeight: opts.DefaultWeight,
		concurrency:   opts.Concurrency,
		locks:         newKeyLocks(lockStripes),
		checkpoints:   opts.Checkpoints,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           time.Now,
	}
}

type entityObs struct {
	name  string
	typ   types.EntityType
	props map[string]any
}

type relationObs struct {
	source, target           string
	sourceType, targetType   types.EntityType
	sourceTyped, targetTyped bool
	typ                      types.RelationType
	props                    map[string]any
	weight                   float64
	hasWeight                bool
}

type plan struct {
	entities  []entityObs
	relations []relationObs
	notes     []string
}

// Ingest merges one record. It only adds or strengthens graph state, so
// ingesting the same record again changes nothing. Parts of a record that
// cannot be placed are skipped and explained in Result.Notes.
func (i *Integrator) Ingest(ctx context.Context, rec Record, mapping *SourceMapping) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		p   *plan
		err error
	)
	switch r := rec.(type) {
	case StructuredRecord:
		p, err = planStructured(r, mapping)
	case *StructuredRecord:
		p, err = planStructured(*r, mapping)
	case ExtractedRecord:
		p, err = planExtracted(r)
	case *ExtractedRecord:
		p, err = planExtracted(*r)
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedRecord, rec)
	}
	if err != nil {
		i.failed.Add(1)
		i.metrics.RecordIngest("failed", 0, 0)
		return nil, err
	}

	sourceID := rec.Source()
	res := &Result{SourceID: sourceID, Notes: p.notes}
	ids := make(map[string]string)

	for _, e := range p.entities {
		id, err := i.applyEntity(ctx, e, sourceID, res)
		if errors.Is(err, driver.ErrNameConflict) {
			res.Notes = append(res.Notes, fmt.Sprintf("entity %q skipped: %v", e.name, err))
			continue
		}
		if err != nil {
			return i.fail(res, err)
		}
		ids[e.name] = id
	}

	for _, r := range p.relations {
		srcID, ok, err := i.endpoint(ctx, r.source, r.sourceType, r.sourceTyped, ids, sourceID, res)
		if err != nil {
			return i.fail(res, err)
		}
		if !ok {
			res.Notes = append(res.Notes, fmt.Sprintf("relationship %s -[%s]-> %s skipped: %q cannot be typed", r.source, r.typ, r.target, r.source))
			continue
		}
		dstID, ok, err := i.endpoint(ctx, r.target, r.targetType, r.targetTyped, ids, sourceID, res)
		if err != nil {
			return i.fail(res, err)
		}
		if !ok {
			res.Notes = append(res.Notes, fmt.Sprintf("relationship %s -[%s]-> %s skipped: %q cannot be typed", r.source, r.typ, r.target, r.target))
			continue
		}
		if srcID == dstID {
			res.Notes = append(res.Notes, fmt.Sprintf("relationship %s -[%s]-> %s skipped: both ends resolve to the same entity", r.source, r.typ, r.target))
			continue
		}
		if err := i.applyRelationship(ctx, srcID, dstID, r, sourceID, res); err != nil {
			return i.fail(res, err)
		}
	}

	i.records.Add(1)
	if res.Partial() {
		i.partial.Add(1)
		i.logger.Info("Partial ingestion", "source", sourceID, "notes", res.Notes)
	}
	i.metrics.RecordIngest(res.Status(), len(res.EntitiesTouched), len(res.RelationshipsTouched))
	i.logger.Debug("Ingested record",
		"source", sourceID,
		"entities", len(res.EntitiesTouched),
		"relationships", len(res.RelationshipsTouched),
		"conflicts", len(res.Conflicts))
	return res, nil
}

func (i *Integrator) fail(res *Result, err error) (*Result, error) {
	i.failed.Add(1)
	i.metrics.RecordIngest("failed", len(res.EntitiesTouched), len(res.RelationshipsTouched))
	return res, fmt.Errorf("ingest %s: %w", res.SourceID, err)
}

func planStructured(rec StructuredRecord, m *SourceMapping) (*plan, error) {
	if m == nil {
		return nil, ErrNoMapping
	}
	name := fieldString(rec.Fields, m.EntityKey)
	if name == "" {
		return nil, fmt.Errorf("%w: field %q is empty", ErrNoEntityName, m.EntityKey)
	}

	rawType := m.EntityType
	if s := fieldString(rec.Fields, m.TypeKey); s != "" {
		rawType = s
	}

	props := make(map[string]any)
	if len(m.PropertyKeys) > 0 {
		for _, k := range m.PropertyKeys {
			if v, ok := rec.Fields[k]; ok {
				props[k] = v
			}
		}
	} else {
		reserved := m.reservedKeys()
		for k, v := range rec.Fields {
			if _, skip := reserved[k]; skip {
				continue
			}
			if _, nested := v.(map[string]any); nested {
				continue
			}
			props[k] = v
		}
	}

	p := &plan{entities: []entityObs{{name: name, typ: types.NormalizeEntityType(rawType), props: SanitizeProperties(props)}}}

	for _, rs := range m.Relationships {
		target := fieldString(rec.Fields, rs.TargetKey)
		if target == "" {
			continue
		}
		relType := types.SanitizeRelationType(rs.Type)
		if relType == "" {
			p.notes = append(p.notes, fmt.Sprintf("relationship type %q is not usable", rs.Type))
			continue
		}
		targetType := rs.TargetType
		if s := fieldString(rec.Fields, rs.TargetTypeKey); s != "" {
			targetType = s
		}

		relProps := make(map[string]any, len(rs.Properties)+len(rs.PropertyKeys))
		for k, v := range rs.Properties {
			relProps[k] = v
		}
		for _, k := range rs.PropertyKeys {
			if v, ok := rec.Fields[k]; ok {
				relProps[k] = v
			}
		}
		if rs.WeightKey != "" {
			if v, ok := rec.Fields[rs.WeightKey]; ok {
				relProps[rs.WeightKey] = v
			}
		}
		relProps = SanitizeProperties(relProps)

		obs := relationObs{
			source:      name,
			target:      target,
			sourceType:  types.NormalizeEntityType(rawType),
			sourceTyped: true,
			targetType:  types.NormalizeEntityType(targetType),
			targetTyped: strings.TrimSpace(targetType) != "",
			typ:         relType,
			props:       relProps,
		}
		if rs.WeightKey != "" {
			obs.weight, obs.hasWeight = types.ToFloat(relProps[rs.WeightKey])
		} else {
			obs.weight, obs.hasWeight = types.WeightFromProperties(relProps)
		}
		if rs.Reverse {
			obs.source, obs.target = obs.target, obs.source
			obs.sourceType, obs.targetType = obs.targetType, obs.sourceType
			obs.sourceTyped, obs.targetTyped = obs.targetTyped, obs.sourceTyped
		}
		p.relations = append(p.relations, obs)
	}
	return p, nil
}

func planExtracted(rec ExtractedRecord) (*plan, error) {
	p := &plan{}
	for _, e := range rec.Entities {
		name := utils.CleanName(e.Name)
		if name == "" {
			p.notes = append(p.notes, "entity with an empty name skipped")
			continue
		}
		props := make(map[string]any, len(e.Properties)+1)
		for k, v := range e.Properties {
			props[k] = v
		}
		if ctx := strings.TrimSpace(e.Context); ctx != "" {
			props["context"] = utils.Truncate(ctx, MaxContextLength)
		}
		p.entities = append(p.entities, entityObs{name: name, typ: types.NormalizeEntityType(e.Type), props: SanitizeProperties(props)})
	}
	if len(p.entities) == 0 && len(rec.Relations) == 0 {
		return nil, ErrEmptyRecord
	}

	for _, r := range rec.Relations {
		relType := types.SanitizeRelationType(r.Type)
		if relType == "" {
			p.notes = append(p.notes, fmt.Sprintf("relationship %s -> %s has no usable type", r.Source, r.Target))
			continue
		}
		props := SanitizeProperties(r.Properties)
		weight, hasWeight := types.WeightFromProperties(props)
		p.relations = append(p.relations, relationObs{
			source:    utils.CleanName(r.Source),
			target:    utils.CleanName(r.Target),
			typ:       relType,
			props:     props,
			weight:    weight,
			hasWeight: hasWeight,
		})
	}
	return p, nil
}

// applyEntity resolves and merges one entity observation under its key lock.
func (i *Integrator) applyEntity(ctx context.Context, obs entityObs, sourceID string, res *Result) (string, error) {
	resolution, err := i.resolver.Resolve(ctx, obs.name)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", obs.name, err)
	}
	if resolution.Ambiguity != nil {
		res.Ambiguities = append(res.Ambiguities, resolution.Ambiguity)
	}

	unlock := i.locks.Lock("entity:" + resolution.ID)
	defer unlock()

	existing, err := i.store.GetEntity(ctx, resolution.ID)
	isNew := false
	switch {
	case err == nil:
	case driver.IsNotFound(err):
		existing = &types.CanonicalEntity{
			ID:            resolution.ID,
			CanonicalName: resolution.CanonicalName,
			CreatedAt:     i.now().UTC(),
		}
		isNew = true
	default:
		return "", err
	}

	alias := ""
	if obs.name != existing.CanonicalName && !containsFold(existing.Aliases, obs.name) {
		alias = obs.name
	}
	merged, changed, conflicts := types.MergeEntity(existing, types.EntityUpdate{
		Type:       obs.typ,
		Alias:      alias,
		Properties: obs.props,
		SourceID:   sourceID,
	})
	for _, prop := range conflicts {
		res.Conflicts = append(res.Conflicts, &types.IngestionConflict{Key: existing.CanonicalName, Property: prop, SourceID: sourceID})
		i.conflicts.Add(1)
		i.logger.Debug("Resolved ingestion conflict", "entity", existing.CanonicalName, "property", prop, "source", sourceID)
	}
	if !changed && !isNew {
		return resolution.ID, nil
	}

	if err := i.store.UpsertEntity(ctx, merged); err != nil {
		return "", fmt.Errorf("upsert entity %q: %w", merged.CanonicalName, err)
	}
	i.entityWrites.Add(1)
	res.EntitiesTouched = append(res.EntitiesTouched, merged.ID)
	i.logger.Debug("Upserted entity", "entity", merged.CanonicalName, "id", merged.ID, "new", isNew)
	return resolution.ID, nil
}

// endpoint returns the id for a relationship end. Untyped names are only
// linked when the entity already exists.
func (i *Integrator) endpoint(ctx context.Context, name string, typ types.EntityType, typed bool, ids map[string]string, sourceID string, res *Result) (string, bool, error) {
	if id, ok := ids[name]; ok {
		return id, true, nil
	}
	if typed {
		id, err := i.applyEntity(ctx, entityObs{name: name, typ: typ}, sourceID, res)
		if errors.Is(err, driver.ErrNameConflict) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		ids[name] = id
		return id, true, nil
	}
	r, ok := i.resolver.Lookup(name)
	if !ok {
		return "", false, nil
	}
	if _, err := i.store.GetEntity(ctx, r.ID); err != nil {
		if driver.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	ids[name] = r.ID
	return r.ID, true, nil
}

// applyRelationship folds one observation into the stored relationship
// under its key lock.
func (i *Integrator) applyRelationship(ctx context.Context, srcID, dstID string, obs relationObs, sourceID string, res *Result) error {
	key := types.RelationshipKey{SourceID: srcID, TargetID: dstID, Type: obs.typ}
	unlock := i.locks.Lock("rel:" + key.String())
	defer unlock()

	weight := i.defaultWeight
	if obs.hasWeight {
		weight = obs.weight
	}

	existing, err := i.store.GetRelationship(ctx, key)
	var (
		merged  *types.Relationship
		changed bool
	)
	switch {
	case err == nil:
		var conflicts []string
		merged, changed, conflicts = types.MergeRelationship(existing, types.RelationshipUpdate{
			Weight:     weight,
			Properties: obs.props,
			SourceID:   sourceID,
		}, i.rule)
		for _, prop := range conflicts {
			res.Conflicts = append(res.Conflicts, &types.IngestionConflict{Key: key.String(), Property: prop, SourceID: sourceID})
			i.conflicts.Add(1)
			i.logger.Debug("Resolved ingestion conflict", "relationship", key.String(), "property", prop, "source", sourceID)
		}
	case driver.IsNotFound(err):
		merged = &types.Relationship{
			SourceID:     srcID,
			TargetID:     dstID,
			Type:         obs.typ,
			Weight:       weight,
			Properties:   types.CloneProperties(obs.props),
			Provenance:   []string{sourceID},
			Observations: 1,
		}
		types.SyncWeightProperties(merged.Properties, merged.Weight)
		changed = true
	default:
		return err
	}
	if !changed {
		return nil
	}

	if err := i.store.UpsertRelationship(ctx, merged); err != nil {
		return fmt.Errorf("upsert relationship %s: %w", key, err)
	}
	i.relWrites.Add(1)
	res.RelationshipsTouched = append(res.RelationshipsTouched, key)
	i.logger.Debug("Upserted relationship", "key", key.String(), "weight", merged.Weight)
	return nil
}

// Stats returns a snapshot of the counters.
func (i *Integrator) Stats() Stats {
	return Stats{
		Records:            i.records.Load(),
		PartialRecords:     i.partial.Load(),
		FailedRecords:      i.failed.Load(),
		EntityWrites:       i.entityWrites.Load(),
		RelationshipWrites: i.relWrites.Load(),
		Conflicts:          i.conflicts.Load(),
	}
}

func fieldString(fields map[string]any, key string) string {
	if key == "" {
		return ""
	}
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return utils.CleanName(s)
	}
	return utils.CleanName(fmt.Sprint(v))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
