package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/soundprediction/groundgraph/pkg/metrics"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/soundprediction/groundgraph/pkg/utils"
)

// Method names the stage that produced a resolution.
type Method string

const (
	MethodAlias        Method = "alias"
	MethodAbbreviation Method = "abbreviation"
	MethodFuzzy        Method = "fuzzy"
	MethodNew          Method = "new"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultSimilarityThreshold = 0.85
	DefaultAmbiguityMargin     = 0.05
)

// entityNamespace seeds UUIDv5 ids so the same name always gets the same id.
var entityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://groundgraph.dev/entity"))

// EntityID returns the deterministic id for a normalized canonical name.
func EntityID(key string) string {
	return uuid.NewSHA1(entityNamespace, []byte(key)).String()
}

// Resolution is the outcome of resolving one raw name.
type Resolution struct {
	ID            string
	CanonicalName string
	RawName       string
	Method        Method
	Score         float64
	// Created is true when this call registered a new canonical entity.
	Created bool
	// Ambiguity is set for low-margin matches. It is informational only.
	Ambiguity *types.ResolutionAmbiguity
}

// Options configures a Resolver.
type Options struct {
	SimilarityThreshold float64
	AmbiguityMargin     float64
	// Aliases and Abbreviations extend the built-in tables.
	Aliases       map[string]string
	Abbreviations map[string]string
	Store         AliasStore
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Stats summarizes resolver activity.
type Stats struct {
	UniqueEntities int
	TotalAliases   int
	Version        uint64
	ByMethod       map[Method]int64
	Ambiguities    int64
}

// Resolver canonicalizes entity names. It is safe for concurrent use.
type Resolver struct {
	threshold     float64
	margin        float64
	seedAliases   map[string]string // normalized alias -> canonical name
	abbreviations map[string]string // upper-case abbreviation -> canonical name

	table   *AliasTable
	store   AliasStore
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	statsMu     sync.Mutex
	byMethod    map[Method]int64
	ambiguities int64
}

// New builds a resolver and loads persisted aliases from opts.Store.
func New(ctx context.Context, opts Options) (*Resolver, error) {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.AmbiguityMargin < 0 {
		opts.AmbiguityMargin = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Resolver{
		threshold:     opts.SimilarityThreshold,
		margin:        opts.AmbiguityMargin,
		seedAliases:   make(map[string]string, len(seedAliases)+len(opts.Aliases)),
		abbreviations: make(map[string]string, len(seedAbbreviations)+len(opts.Abbreviations)),
		table:         NewAliasTable(),
		store:         opts.Store,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		byMethod:      make(map[Method]int64),
	}
	for _, src := range []map[string]string{seedAliases, opts.Aliases} {
		for alias, canonical := range src {
			if key := utils.NormalizeForMatch(alias); key != "" {
				r.seedAliases[key] = utils.CleanName(canonical)
			}
		}
	}
	for _, src := range []map[string]string{seedAbbreviations, opts.Abbreviations} {
		for abbr, canonical := range src {
			r.abbreviations[strings.ToUpper(strings.TrimSpace(abbr))] = utils.CleanName(canonical)
		}
	}

	if r.store != nil {
		recs, err := r.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aliases: %w", err)
		}
		r.table.Load(recs, utils.NormalizeForMatch)
		r.logger.Info("Loaded alias table", "entities", len(recs))
	}
	return r, nil
}

// Resolve maps rawName to a canonical entity, registering a new one when no
// stage matches. Only an empty name or a cancelled context is an error.
func (r *Resolver) Resolve(ctx context.Context, rawName string) (*Resolution, error) {
	name := utils.CleanName(rawName)
	key := utils.NormalizeForMatch(name)
	if key == "" {
		return nil, types.ErrEmptyName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	leader := false
	v, _, _ := r.group.Do(key, func() (any, error) {
		leader = true
		return r.resolve(ctx, name, key), nil
	})
	res := *v.(*Resolution)
	res.RawName = rawName
	if !leader {
		res.Created = false
	}
	return &res, nil
}

func (r *Resolver) resolve(ctx context.Context, name, key string) *Resolution {
	if rec, ok := r.table.Lookup(key); ok {
		rec = r.attachAlias(ctx, rec, name, key)
		return r.finish(&Resolution{ID: rec.ID, CanonicalName: rec.CanonicalName, Method: MethodAlias, Score: 1})
	}
	if canonical, ok := r.seedAliases[key]; ok {
		return r.finish(r.toCanonical(ctx, name, key, canonical, MethodAlias))
	}
	if canonical, ok := r.abbreviations[strings.ToUpper(name)]; ok {
		return r.finish(r.toCanonical(ctx, name, key, canonical, MethodAbbreviation))
	}

	best, score, ambiguity := r.bestMatch(name, key)
	if best != nil {
		rec, _ := r.table.Get(best.id)
		rec = r.attachAlias(ctx, rec, name, key)
		return r.finish(&Resolution{
			ID:            rec.ID,
			CanonicalName: rec.CanonicalName,
			Method:        MethodFuzzy,
			Score:         score,
			Ambiguity:     ambiguity,
		})
	}

	rec, created := r.register(ctx, name, key)
	return r.finish(&Resolution{
		ID:            rec.ID,
		CanonicalName: rec.CanonicalName,
		Method:        MethodNew,
		Score:         1,
		Created:       created,
		Ambiguity:     ambiguity,
	})
}

// toCanonical resolves through a seed table entry, registering the
// canonical entity on first use.
func (r *Resolver) toCanonical(ctx context.Context, name, key, canonical string, method Method) *Resolution {
	canonicalKey := utils.NormalizeForMatch(canonical)
	rec, ok := r.table.Lookup(canonicalKey)
	created := false
	if !ok {
		rec, created = r.register(ctx, canonical, canonicalKey)
	}
	rec = r.attachAlias(ctx, rec, name, key)
	return &Resolution{ID: rec.ID, CanonicalName: rec.CanonicalName, Method: method, Score: 1, Created: created}
}

func (r *Resolver) register(ctx context.Context, name, key string) (Record, bool) {
	rec, created := r.table.Register(EntityID(key), name, key)
	if created {
		r.persist(ctx, rec)
	}
	return rec, created
}

func (r *Resolver) attachAlias(ctx context.Context, rec Record, alias, key string) Record {
	updated, added := r.table.AddAlias(rec.ID, alias, key)
	if updated.ID == "" {
		return rec
	}
	if added {
		r.persist(ctx, updated)
	}
	return updated
}

func (r *Resolver) persist(ctx context.Context, rec Record) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Warn("Failed to persist alias record", "id", rec.ID, "name", rec.CanonicalName, "error", err)
	}
}

type scoredCandidate struct {
	candidate
	score float64
}

// bestMatch runs the fuzzy stage. It returns nil when nothing clears the
// threshold. Scores inside the ambiguity band and near ties are reported.
func (r *Resolver) bestMatch(name, key string) (*scoredCandidate, float64, *types.ResolutionAmbiguity) {
	hits := r.rank(key, r.threshold-r.margin)
	if len(hits) == 0 {
		return nil, 0, nil
	}

	best := hits[0]
	if best.score < r.threshold {
		return nil, 0, r.ambiguous(name, best.score, hits)
	}
	if len(hits) > 1 && hits[1].score >= r.threshold && best.score-hits[1].score < r.margin {
		return &best, best.score, r.ambiguous(name, best.score, hits)
	}
	return &best, best.score, nil
}

// rank scores every canonical name against key and orders those at or above
// floor: highest score, then shortest name, then lexicographic.
func (r *Resolver) rank(key string, floor float64) []scoredCandidate {
	var hits []scoredCandidate
	for _, c := range r.table.candidates(utils.NormalizeForMatch) {
		if s := Similarity(key, c.key); s >= floor {
			hits = append(hits, scoredCandidate{candidate: c, score: s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		li, lj := utf8.RuneCountInString(hits[i].name), utf8.RuneCountInString(hits[j].name)
		if li != lj {
			return li < lj
		}
		return hits[i].name < hits[j].name
	})
	return hits
}

func (r *Resolver) ambiguous(name string, score float64, hits []scoredCandidate) *types.ResolutionAmbiguity {
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		names = append(names, h.name)
	}
	amb := &types.ResolutionAmbiguity{RawName: name, Candidates: names, Score: score}
	r.statsMu.Lock()
	r.ambiguities++
	r.statsMu.Unlock()
	r.logger.Warn("Ambiguous entity resolution", "name", name, "score", score, "candidates", names)
	return amb
}

func (r *Resolver) finish(res *Resolution) *Resolution {
	r.statsMu.Lock()
	r.byMethod[res.Method]++
	r.statsMu.Unlock()
	r.metrics.RecordResolution(string(res.Method))
	r.logger.Debug("Resolved entity", "canonical", res.CanonicalName, "method", res.Method, "score", res.Score)
	return res
}

// Lookup resolves rawName without registering anything.
func (r *Resolver) Lookup(rawName string) (*Resolution, bool) {
	name := utils.CleanName(rawName)
	key := utils.NormalizeForMatch(name)
	if key == "" {
		return nil, false
	}

	found := func(rec Record, method Method, score float64) (*Resolution, bool) {
		return &Resolution{ID: rec.ID, CanonicalName: rec.CanonicalName, RawName: rawName, Method: method, Score: score}, true
	}
	if rec, ok := r.table.Lookup(key); ok {
		return found(rec, MethodAlias, 1)
	}
	if canonical, ok := r.seedAliases[key]; ok {
		if rec, ok := r.table.Lookup(utils.NormalizeForMatch(canonical)); ok {
			return found(rec, MethodAlias, 1)
		}
	}
	if canonical, ok := r.abbreviations[strings.ToUpper(name)]; ok {
		if rec, ok := r.table.Lookup(utils.NormalizeForMatch(canonical)); ok {
			return found(rec, MethodAbbreviation, 1)
		}
	}
	if hits := r.rank(key, r.threshold); len(hits) > 0 {
		if rec, ok := r.table.Get(hits[0].id); ok {
			return found(rec, MethodFuzzy, hits[0].score)
		}
	}
	return nil, false
}

// minCaselessKeyLen is the shortest Latin key matched in any letter case.
const minCaselessKeyLen = 3

// shortLatinKey reports whether key is a short ASCII key such as "it" or
// "us". Those only count as a mention when written in upper case.
func shortLatinKey(key string) bool {
	if len(key) >= minCaselessKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// upperTokens collects the tokens of text written entirely in upper case.
func upperTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if strings.ToUpper(tok) == tok {
			out[tok] = struct{}{}
		}
	}
	return out
}

// ResolveMentions finds known entities named in text, in order of first
// mention. Matches are whole words; short Latin keys must be written in
// upper case. Nothing is registered.
func (r *Resolver) ResolveMentions(text string) []Resolution {
	padded := " " + utils.NormalizeForMatch(text) + " "
	upper := upperTokens(text)
	mentioned := func(key string) int {
		if shortLatinKey(key) {
			if _, ok := upper[strings.ToUpper(key)]; !ok {
				return -1
			}
		}
		return strings.Index(padded, " "+key+" ")
	}

	type hit struct {
		pos int
		id  string
		raw string
	}
	var hits []hit
	for key, id := range r.table.keys() {
		if pos := mentioned(key); pos >= 0 {
			hits = append(hits, hit{pos: pos, id: id, raw: key})
		}
	}
	for key, canonical := range r.seedAliases {
		if pos := mentioned(key); pos >= 0 {
			if rec, ok := r.table.Lookup(utils.NormalizeForMatch(canonical)); ok {
				hits = append(hits, hit{pos: pos, id: rec.ID, raw: key})
			}
		}
	}
	for _, word := range strings.Fields(text) {
		trimmed := strings.Trim(word, ".,;:!?()[]\"'")
		abbr := strings.ToUpper(trimmed)
		if shortLatinKey(abbr) && trimmed != abbr {
			continue
		}
		if canonical, ok := r.abbreviations[abbr]; ok {
			if rec, ok := r.table.Lookup(utils.NormalizeForMatch(canonical)); ok {
				pos := strings.Index(padded, " "+strings.ToLower(abbr)+" ")
				hits = append(hits, hit{pos: pos, id: rec.ID, raw: abbr})
			}
		}
	}

	// earliest mention first; longer keys win at the same position
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		if len(hits[i].raw) != len(hits[j].raw) {
			return len(hits[i].raw) > len(hits[j].raw)
		}
		return hits[i].id < hits[j].id
	})

	seen := make(map[string]struct{})
	var out []Resolution
	for _, h := range hits {
		if _, dup := seen[h.id]; dup {
			continue
		}
		seen[h.id] = struct{}{}
		rec, ok := r.table.Get(h.id)
		if !ok {
			continue
		}
		out = append(out, Resolution{ID: rec.ID, CanonicalName: rec.CanonicalName, RawName: h.raw, Method: MethodAlias, Score: 1})
	}
	return out
}

// Record returns the canonical record for id.
func (r *Resolver) Record(id string) (Record, bool) {
	return r.table.Get(id)
}

// Records returns every canonical record.
func (r *Resolver) Records() []Record {
	return r.table.Records()
}

// Version is the alias table version.
func (r *Resolver) Version() uint64 {
	return r.table.Version()
}

// Stats reports entity, alias and per-method counts.
func (r *Resolver) Stats() Stats {
	recs := r.table.Records()
	s := Stats{UniqueEntities: len(recs), Version: r.table.Version(), ByMethod: make(map[Method]int64)}
	for _, rec := range recs {
		s.TotalAliases += len(rec.Aliases)
	}
	r.statsMu.Lock()
	for m, n := range r.byMethod {
		s.ByMethod[m] = n
	}
	s.Ambiguities = r.ambiguities
	r.statsMu.Unlock()
	return s
}

// Reset clears the alias table and the persisted records.
func (r *Resolver) Reset(ctx context.Context) error {
	r.table.Reset()
	if r.store != nil {
		if err := r.store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset alias store: %w", err)
		}
	}
	return nil
}

// Close closes the alias store.
func (r *Resolver) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
