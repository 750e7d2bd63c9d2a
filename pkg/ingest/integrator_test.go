package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/groundgraph/pkg/checkpoint"
	"github.com/soundprediction/groundgraph/pkg/driver"
	"github.com/soundprediction/groundgraph/pkg/resolver"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/soundprediction/groundgraph/pkg/utils"
)

func newTestIntegrator(t *testing.T, store Store, opts Options) *Integrator {
	t.Helper()
	res, err := resolver.New(context.Background(), resolver.Options{})
	require.NoError(t, err)
	return New(store, res, opts)
}

func scenarioRecord() ExtractedRecord {
	return ExtractedRecord{
		SourceID: "news-1",
		Entities: []ExtractedEntity{
			{Name: "CompanyA", Type: "Company"},
			{Name: "SupplierB", Type: "Company"},
			{Name: "CountryX", Type: "Country"},
			{Name: "RiskEvent", Type: "Event", Context: "A strike shut ports in CountryX."},
		},
		Relations: []ExtractedRelation{
			{Source: "CompanyA", Target: "SupplierB", Type: "DEPENDS_ON", Properties: map[string]any{"weight": 0.9}},
			{Source: "SupplierB", Target: "CountryX", Type: "located in"},
			{Source: "RiskEvent", Target: "CountryX", Type: "AFFECTS", Properties: map[string]any{"severity": 0.95}},
		},
	}
}

func relationshipWeights(t *testing.T, store *driver.MemoryDriver) map[types.RelationType]float64 {
	t.Helper()
	rels, err := store.ListRelationships(context.Background())
	require.NoError(t, err)
	out := make(map[types.RelationType]float64, len(rels))
	for _, r := range rels {
		out[r.Type] = r.Weight
	}
	return out
}

func TestIngest_ExtractedRecord(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryDriver()
	ing := newTestIntegrator(t, store, Options{})

	res, err := ing.Ingest(ctx, scenarioRecord(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status())
	assert.Len(t, res.EntitiesTouched, 4)
	assert.Len(t, res.RelationshipsTouched, 3)

	weights := relationshipWeights(t, store)
	assert.Equal(t, 0.9, weights[types.RelDependsOn])
	assert.Equal(t, 1.0, weights[types.RelLocatedIn])
	assert.Equal(t, 0.95, weights[types.RelAffects])

	risk, err := store.GetEntityByName(ctx, "RiskEvent")
	require.NoError(t, err)
	assert.Equal(t, types.EntityTypeEvent, risk.Type)
	assert.Equal(t, "A strike shut ports in CountryX.", risk.Properties["context"])
	assert.Equal(t, []string{"news-1"}, risk.Provenance)
}

func TestIngest_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryDriver()
	ing := newTestIntegrator(t, store, Options{CombineRule: "mean"})

	_, err := ing.Ingest(ctx, scenarioRecord(), nil)
	require.NoError(t, err)
	entitiesBefore, err := store.ListEntities(ctx)
	require.NoError(t, err)
	relsBefore, err := store.ListRelationships(ctx)
	require.NoError(t, err)

	again, err := ing.Ingest(ctx, scenarioRecord(), nil)
	require.NoError(t, err)
	assert.Empty(t, again.EntitiesTouched)
	assert.Empty(t, again.RelationshipsTouched)

	entitiesAfter, err := store.ListEntities(ctx)
	require.NoError(t, err)
	relsAfter, err := store.ListRelationships(ctx)
	require.NoError(t, err)
	assert.Equal(t, entitiesBefore, entitiesAfter)
	assert.Equal(t, relsBefore, relsAfter)

	stats := ing.Stats()
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, int64(4), stats.EntityWrites)
	assert.Equal(t, int64(3), stats.RelationshipWrites)
}

func TestIngest_StructuredMapping(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryDriver()
	ing := newTestIntegrator(t, store, Options{})

	mapping, err := ParseMapping([]byte(`
name: suppliers
entity_key: company
entity_type: Company
property_keys: [sector]
relationships:
  - type: depends on
    target_key: supplier
    target_type: Company
    weight_key: criticality
`))
	require.NoError(t, err)

	rec := StructuredRecord{
		SourceID: "suppliers.csv#1",
		Fields: map[string]any{
			"company":     "NVDA",
			"sector":      "Semiconductors",
			"supplier":    "TSMC",
			"criticality": "0.8",
		},
	}
	res, err := ing.Ingest(ctx, rec, mapping)
	require.NoError(t, err)
	assert.False(t, res.Partial())

	nvidia, err := store.GetEntityByName(ctx, "NVIDIA")
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA"}, nvidia.Aliases)
	assert.Equal(t, "Semiconductors", nvidia.Properties["sector"])
	assert.NotContains(t, nvidia.Properties, "criticality")

	tsmc, err := store.GetEntityByName(ctx, "TSMC")
	require.NoError(t, err)
	assert.Equal(t, types.EntityTypeCompany, tsmc.Type)

	rel, err := store.GetRelationship(ctx, types.RelationshipKey{SourceID: nvidia.ID, TargetID: tsmc.ID, Type: types.RelDependsOn})
	require.NoError(t, err)
	assert.Equal(t, 0.8, rel.Weight)
	assert.Equal(t, 0.8, rel.Properties["criticality"])

	t.Run("reverse flips the direction", func(t *testing.T) {
		m := *mapping
		m.Relationships = []RelationshipSpec{{Type: "SUPPLIES_TO", TargetKey: "supplier", TargetType: "Company", Reverse: true}}
		_, err := ing.Ingest(ctx, rec, &m)
		require.NoError(t, err)
		_, err = store.GetRelationship(ctx, types.RelationshipKey{SourceID: tsmc.ID, TargetID: nvidia.ID, Type: types.RelSuppliesTo})
		assert.NoError(t, err)
	})

	t.Run("missing entity field", func(t *testing.T) {
		_, err := ing.Ingest(ctx, StructuredRecord{Fields: map[string]any{"sector": "x"}}, mapping)
		assert.ErrorIs(t, err, ErrNoEntityName)
	})

	t.Run("no mapping", func(t *testing.T) {
		_, err := ing.Ingest(ctx, rec, nil)
		assert.ErrorIs(t, err, ErrNoMapping)
	})
}

func TestIngest_UntypedTargetIsPartial(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryDriver()
	ing := newTestIntegrator(t, store, Options{})

	rec := ExtractedRecord{
		SourceID: "memo-7",
		Entities: []ExtractedEntity{{Name: "Acme Foods", Type: "Company"}},
		Relations: []ExtractedRelation{
			{Source: "Acme Foods", Target: "Zenith Metals", Type: "DEPENDS_ON"},
		},
	}

	res, err := ing.Ingest(ctx, rec, nil)
	require.NoError(t, err)
	assert.True(t, res.Partial())
	assert.Equal(t, "partial", res.Status())
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "Zenith Metals")

	_, err = store.GetEntityByName(ctx, "Acme Foods")
	assert.NoError(t, err)
	rels, err := store.ListRelationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)

	t.Run("known target is linked without a type", func(t *testing.T) {
		_, err := ing.Ingest(ctx, ExtractedRecord{
			SourceID: "registry",
			Entities: []ExtractedEntity{{Name: "Zenith Metals", Type: "Company"}},
		}, nil)
		require.NoError(t, err)

		res, err := ing.Ingest(ctx, rec, nil)
		require.NoError(t, err)
		assert.False(t, res.Partial())
		assert.Len(t, res.RelationshipsTouched, 1)
	})
}

func TestIngest_PropertyConflict(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryDriver()
	ing := newTestIntegrator(t, store, Options{})

	first := ExtractedRecord{SourceID: "s1", Entities: []ExtractedEntity{{Name: "Orbit Labs", Type: "Company", Properties: map[string]any{"hq": "Oslo"}}}}
	second := ExtractedRecord{SourceID: "s2", Entities: []ExtractedEntity{{Name: "Orbit Labs", Type: "Company", Properties: map[string]any{"hq": "Bergen"}}}}

	_, err := ing.Ingest(ctx, first, nil)
	require.NoError(t, err)
	res, err := ing.Ingest(ctx, second, nil)
	require.NoError(t, err)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "hq", res.Conflicts[0].Property)
	assert.Equal(t, "s2", res.Conflicts[0].SourceID)
	assert.False(t, res.Partial())

	got, err := store.GetEntityByName(ctx, "Orbit Labs")
	require.NoError(t, err)
	assert.Equal(t, "Bergen", got.Properties["hq"])
	assert.Equal(t, []string{"s1", "s2"}, got.Provenance)
	assert.Equal(t, int64(1), ing.Stats().Conflicts)
}

func TestIngest_CombineRules(t *testing.T) {
	observation := func(source string, weight float64) ExtractedRecord {
		return ExtractedRecord{
			SourceID: source,
			Entities: []ExtractedEntity{{Name: "Acme Foods", Type: "Company"}, {Name: "Zenith Metals", Type: "Company"}},
			Relations: []ExtractedRelation{
				{Source: "Acme Foods", Target: "Zenith Metals", Type: "DEPENDS_ON", Properties: map[string]any{"weight": weight}},
			},
		}
	}

	tests := []struct {
		rule string
		want float64
	}{
		{"max", 1.0},
		{"latest", 0.6},
		{"mean", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			ctx := context.Background()
			store := driver.NewMemoryDriver()
			ing := newTestIntegrator(t, store, Options{CombineRule: tt.rule})

			_, err := ing.Ingest(ctx, observation("s1", 1.0), nil)
			require.NoError(t, err)
			_, err = ing.Ingest(ctx, observation("s2", 0.6), nil)
			require.NoError(t, err)

			rels, err := store.ListRelationships(ctx)
			require.NoError(t, err)
			require.Len(t, rels, 1)
			assert.InDelta(t, tt.want, rels[0].Weight, 1e-9)
			assert.InDelta(t, tt.want, rels[0].Properties["weight"], 1e-9)
			assert.Equal(t, 2, rels[0].Observations)
		})
	}
}

func TestIngest_WeakerMentionKeepsWeightProperties(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryDriver()
	ing := newTestIntegrator(t, store, Options{})

	mention := func(source string, props map[string]any) ExtractedRecord {
		return ExtractedRecord{
			SourceID: source,
			Entities: []ExtractedEntity{{Name: "CompanyA", Type: "Company"}, {Name: "SupplierB", Type: "Company"}},
			Relations: []ExtractedRelation{
				{Source: "CompanyA", Target: "SupplierB", Type: "DEPENDS_ON", Properties: props},
			},
		}
	}

	_, err := ing.Ingest(ctx, mention("s1", map[string]any{"weight": 0.9, "tier": "primary"}), nil)
	require.NoError(t, err)
	res, err := ing.Ingest(ctx, mention("s2", map[string]any{"weight": 0.2, "tier": "secondary"}), nil)
	require.NoError(t, err)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "tier", res.Conflicts[0].Property)
	assert.Equal(t, "s2", res.Conflicts[0].SourceID)
	assert.Equal(t, int64(1), ing.Stats().Conflicts)

	rels, err := store.ListRelationships(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.9, rels[0].Weight)
	assert.Equal(t, 0.9, rels[0].Properties["weight"])
	assert.Equal(t, "secondary", rels[0].Properties["tier"])
	assert.Equal(t, []string{"s1", "s2"}, rels[0].Provenance)

	w, err := utils.NewParquetGraphWriter(t.TempDir())
	require.NoError(t, err)
	path, err := w.WriteRelationships(ctx, rels, "snap")
	require.NoError(t, err)
	rows, err := parquet.ReadFile[utils.ParquetRelationship](path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.9, rows[0].Weight)
	assert.JSONEq(t, `{"weight":0.9,"tier":"secondary"}`, rows[0].Properties)
}

func TestIngest_EmptyAndUnsupported(t *testing.T) {
	ing := newTestIntegrator(t, driver.NewMemoryDriver(), Options{})

	_, err := ing.Ingest(context.Background(), ExtractedRecord{SourceID: "empty"}, nil)
	assert.ErrorIs(t, err, ErrEmptyRecord)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ing.Ingest(ctx, scenarioRecord(), nil)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(1), ing.Stats().FailedRecords)
}

// flakyStore fails entity writes for one name until healed.
type flakyStore struct {
	*driver.MemoryDriver
	failName string
	healed   atomic.Bool
	calls    atomic.Int64
}

func (f *flakyStore) UpsertEntity(ctx context.Context, e *types.CanonicalEntity) error {
	f.calls.Add(1)
	if e.CanonicalName == f.failName && !f.healed.Load() {
		return types.NewServiceUnavailableError(types.CollaboratorStore, "upsert", errors.New("connection reset"))
	}
	return f.MemoryDriver.UpsertEntity(ctx, e)
}

func TestIngest_StoreUnavailable(t *testing.T) {
	store := &flakyStore{MemoryDriver: driver.NewMemoryDriver(), failName: "RiskEvent"}
	ing := newTestIntegrator(t, store, Options{})

	res, err := ing.Ingest(context.Background(), scenarioRecord(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrServiceUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, "news-1", res.SourceID)
	assert.Equal(t, int64(1), ing.Stats().FailedRecords)
}

func TestIngestBatch_ResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryDriver: driver.NewMemoryDriver(), failName: "Gamma Industries"}
	mgr, err := checkpoint.NewCheckpointManager(t.TempDir())
	require.NoError(t, err)
	ing := newTestIntegrator(t, store, Options{Checkpoints: mgr, Concurrency: 2})

	records := []Record{
		ExtractedRecord{SourceID: "r0", Entities: []ExtractedEntity{{Name: "Alpha Systems", Type: "Company"}}},
		ExtractedRecord{SourceID: "r1", Entities: []ExtractedEntity{{Name: "Beta Logistics", Type: "Company"}}},
		ExtractedRecord{SourceID: "r2", Entities: []ExtractedEntity{{Name: "Gamma Industries", Type: "Company"}}},
	}

	first, err := ing.IngestBatch(ctx, "nightly", records, nil)
	require.NoError(t, err)
	assert.False(t, first.Resumed)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 1, first.Failed)
	assert.True(t, first.Partial())
	assert.ErrorIs(t, first.Errors[2], types.ErrServiceUnavailable)

	cp, err := mgr.Load(ctx, "nightly")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 2, cp.Completed)
	assert.False(t, cp.IsComplete())

	store.healed.Store(true)
	callsBefore := store.calls.Load()

	second, err := ing.IngestBatch(ctx, "nightly", records, nil)
	require.NoError(t, err)
	assert.True(t, second.Resumed)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, int64(1), store.calls.Load()-callsBefore)

	cp, err = mgr.Load(ctx, "nightly")
	require.NoError(t, err)
	assert.Nil(t, cp)

	entities, err := store.ListEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 3)
}

func TestIngestBatch_ConcurrentObservations(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryDriver()
	ing := newTestIntegrator(t, store, Options{Concurrency: 8, CombineRule: "mean"})

	const n = 50
	records := make([]Record, n)
	for i := range records {
		records[i] = ExtractedRecord{
			SourceID: "feed-" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Entities: []ExtractedEntity{{Name: "Hub Corp", Type: "Company"}, {Name: "Port Authority", Type: "Organization"}},
			Relations: []ExtractedRelation{
				{Source: "Hub Corp", Target: "Port Authority", Type: "DEPENDS_ON", Properties: map[string]any{"weight": 0.5}},
			},
		}
	}

	res, err := ing.IngestBatch(ctx, "", records, nil)
	require.NoError(t, err)
	assert.Equal(t, n, res.Processed)

	hub, err := store.GetEntityByName(ctx, "Hub Corp")
	require.NoError(t, err)
	assert.Len(t, hub.Provenance, n)

	rels, err := store.ListRelationships(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, n, rels[0].Observations)
	assert.InDelta(t, 0.5, rels[0].Weight, 1e-9)
}

func TestKeyLocks(t *testing.T) {
	locks := newKeyLocks(4)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("entity:hub")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}
