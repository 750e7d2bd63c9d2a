package resolver

import (
	"sort"
	"strings"
	"sync"
)

// Record is the persisted form of one canonical entity and its aliases.
type Record struct {
	ID            string   `json:"id"`
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases,omitempty"`
}

type candidate struct {
	id   string
	name string
	key  string
}

// AliasTable owns the name-to-identity mapping. Every alias key maps to
// exactly one canonical id. Reads share a lock; each write is atomic and
// bumps the version.
type AliasTable struct {
	mu      sync.RWMutex
	version uint64

	records map[string]*Record // id -> record
	byKey   map[string]string  // normalized alias or canonical name -> id
}

// NewAliasTable returns an empty table.
func NewAliasTable() *AliasTable {
	return &AliasTable{
		records: make(map[string]*Record),
		byKey:   make(map[string]string),
	}
}

// Version increases on every successful write.
func (t *AliasTable) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Lookup returns the record a normalized key maps to.
func (t *AliasTable) Lookup(key string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byKey[key]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(t.records[id]), true
}

// Get returns the record for id.
func (t *AliasTable) Get(id string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// Register adds a canonical entity unless its key is already taken, in which
// case the existing record is returned with created=false.
func (t *AliasTable) Register(id, name, key string) (rec Record, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.byKey[key]; ok {
		return cloneRecord(t.records[existing]), false
	}
	r := &Record{ID: id, CanonicalName: name}
	t.records[id] = r
	t.byKey[key] = id
	t.version++
	return cloneRecord(r), true
}

// AddAlias maps key to id and records alias on the entity. When key already
// belongs to another entity the first mapping is kept and that entity's
// record is returned. added reports whether the table changed.
func (t *AliasTable) AddAlias(id, alias, key string) (rec Record, added bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	if owner, taken := t.byKey[key]; taken && owner != id {
		return cloneRecord(t.records[owner]), false
	}
	if _, taken := t.byKey[key]; !taken {
		t.byKey[key] = id
		added = true
	}
	if alias != r.CanonicalName && !containsFold(r.Aliases, alias) {
		r.Aliases = append(r.Aliases, alias)
		added = true
	}
	if added {
		t.version++
	}
	return cloneRecord(r), added
}

// Load replaces the table contents with recs. keyFn derives lookup keys.
func (t *AliasTable) Load(recs []Record, keyFn func(string) string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*Record, len(recs))
	t.byKey = make(map[string]string, len(recs))
	for i := range recs {
		r := cloneRecord(&recs[i])
		t.records[r.ID] = &r
		t.byKey[keyFn(r.CanonicalName)] = r.ID
		for _, a := range r.Aliases {
			if _, taken := t.byKey[keyFn(a)]; !taken {
				t.byKey[keyFn(a)] = r.ID
			}
		}
	}
	t.version++
}

// Reset empties the table.
func (t *AliasTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*Record)
	t.byKey = make(map[string]string)
	t.version++
}

// Records returns every record sorted by canonical name.
func (t *AliasTable) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out
}

func (t *AliasTable) candidates(keyFn func(string) string) []candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]candidate, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, candidate{id: r.ID, name: r.CanonicalName, key: keyFn(r.CanonicalName)})
	}
	return out
}

// keys returns every alias key with its id; used for mention scanning.
func (t *AliasTable) keys() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.byKey))
	for k, id := range t.byKey {
		out[k] = id
	}
	return out
}

func cloneRecord(r *Record) Record {
	out := *r
	out.Aliases = append([]string(nil), r.Aliases...)
	return out
}

// containsFold treats case variants of an alias as the same alias.
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
