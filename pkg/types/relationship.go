package types

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// RelationType is the type of a directed relationship between two entities.
type RelationType string

const (
	RelDependsOn    RelationType = "DEPENDS_ON"
	RelCompetesWith RelationType = "COMPETES_WITH"
	RelImpacts      RelationType = "IMPACTS"
	RelLocatedIn    RelationType = "LOCATED_IN"
	RelAffects      RelationType = "AFFECTS"
	RelOperatesIn   RelationType = "OPERATES_IN"
	RelSuppliesTo   RelationType = "SUPPLIES_TO"
	RelHasMetric    RelationType = "HAS_METRIC"
	RelBelongsTo    RelationType = "BELONGS_TO"
)

// DefaultRelationTypes is the allow-list used when none is configured.
var DefaultRelationTypes = []RelationType{
	RelDependsOn, RelCompetesWith, RelImpacts, RelLocatedIn, RelAffects,
	RelOperatesIn, RelSuppliesTo, RelHasMetric, RelBelongsTo,
}

var nonIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeRelationType turns a free-form label into an upper snake case
// relationship type. Returns "" when nothing usable is left.
func SanitizeRelationType(raw string) RelationType {
	s := nonIdentifier.ReplaceAllString(strings.TrimSpace(raw), "_")
	s = strings.Trim(s, "_")
	return RelationType(strings.ToUpper(s))
}

// WeightKeys are the property names read as a relationship weight, in order.
var WeightKeys = []string{"weight", "severity", "criticality"}

// Relationship is a directed, typed edge between two canonical entities.
type Relationship struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       RelationType   `json:"type"`
	Weight     float64        `json:"weight"`
	Properties map[string]any `json:"properties,omitempty"`
	Provenance []string       `json:"provenance,omitempty"`

	// Observations counts distinct provenance entries that contributed to
	// Weight; used by the mean combine rule.
	Observations int `json:"observations,omitempty"`
}

// RelationshipKey identifies a relationship for upserts and locking.
type RelationshipKey struct {
	SourceID string
	TargetID string
	Type     RelationType
}

func (k RelationshipKey) String() string {
	return fmt.Sprintf("%s-[%s]->%s", k.SourceID, k.Type, k.TargetID)
}

// Key returns the (source, target, type) identity of r.
func (r *Relationship) Key() RelationshipKey {
	return RelationshipKey{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type}
}

// Validate checks that the relationship can be written to a store.
func (r *Relationship) Validate() error {
	if r.SourceID == "" || r.TargetID == "" {
		return ErrEmptyID
	}
	if r.Type == "" {
		return ErrEmptyRelationType
	}
	if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
		return fmt.Errorf("weight %v: %w", r.Weight, ErrInvalidProperty)
	}
	for k, v := range r.Properties {
		if !IsPropertyValue(v) {
			return fmt.Errorf("property %q: %w", k, ErrInvalidProperty)
		}
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	out := *r
	out.Provenance = append([]string(nil), r.Provenance...)
	out.Properties = CloneProperties(r.Properties)
	return &out
}

// CombineRule decides how a re-observed relationship weight is folded into
// the stored one.
type CombineRule string

const (
	CombineMax    CombineRule = "max"
	CombineLatest CombineRule = "latest"
	CombineMean   CombineRule = "mean"
)

// ParseCombineRule returns the rule named by s, defaulting to CombineMax.
func ParseCombineRule(s string) CombineRule {
	switch CombineRule(strings.ToLower(strings.TrimSpace(s))) {
	case CombineLatest:
		return CombineLatest
	case CombineMean:
		return CombineMean
	default:
		return CombineMax
	}
}

// RelationshipUpdate is one observation of a relationship.
type RelationshipUpdate struct {
	Weight     float64
	Properties map[string]any
	SourceID   string
}

// MergeRelationship folds an observation into an existing relationship.
// Weights never drop under CombineMax. An observation from a provenance that
// was already counted does not move the mean, which keeps re-ingestion a no-op.
// Numeric weight-like properties always mirror the combined Weight; other
// properties follow MergeEntity, and conflicts lists the keys it replaced.
func MergeRelationship(existing *Relationship, upd RelationshipUpdate, rule CombineRule) (merged *Relationship, changed bool, conflicts []string) {
	merged = existing.Clone()

	seenSource := upd.SourceID != "" && containsString(merged.Provenance, upd.SourceID)

	var weight float64
	switch rule {
	case CombineLatest:
		weight = upd.Weight
	case CombineMean:
		if seenSource {
			weight = merged.Weight
		} else {
			n := float64(merged.Observations)
			weight = (merged.Weight*n + upd.Weight) / (n + 1)
			merged.Observations++
			changed = true
		}
	default:
		weight = math.Max(merged.Weight, upd.Weight)
	}
	if weight != merged.Weight {
		merged.Weight = weight
		changed = true
	}

	if upd.SourceID != "" && !seenSource {
		merged.Provenance = append(merged.Provenance, upd.SourceID)
		if rule != CombineMean {
			merged.Observations++
		}
		changed = true
	}

	rest, weightKeys := splitWeightProperties(upd.Properties)
	entityShaped := &CanonicalEntity{Type: EntityTypeGeneric, Properties: merged.Properties}
	m, propsChanged, conflicts := MergeEntity(entityShaped, EntityUpdate{Type: EntityTypeGeneric, Properties: rest})
	if propsChanged {
		merged.Properties = m.Properties
		changed = true
	}
	for _, k := range weightKeys {
		if _, ok := merged.Properties[k]; !ok {
			if merged.Properties == nil {
				merged.Properties = map[string]any{}
			}
			merged.Properties[k] = merged.Weight
			changed = true
		}
	}
	if SyncWeightProperties(merged.Properties, merged.Weight) {
		changed = true
	}
	return merged, changed, conflicts
}

// SyncWeightProperties sets every numeric weight-like property in props to
// weight and reports whether any value moved.
func SyncWeightProperties(props map[string]any, weight float64) bool {
	changed := false
	for _, k := range WeightKeys {
		v, ok := props[k]
		if !ok {
			continue
		}
		f, numeric := ToFloat(v)
		if !numeric {
			continue
		}
		if _, isFloat := v.(float64); isFloat && f == weight {
			continue
		}
		props[k] = weight
		changed = true
	}
	return changed
}

// splitWeightProperties separates numeric weight-like keys from the
// properties that merge last-write-wins.
func splitWeightProperties(props map[string]any) (map[string]any, []string) {
	var keys []string
	rest := make(map[string]any, len(props))
	for k, v := range props {
		if containsString(WeightKeys, k) {
			if _, ok := ToFloat(v); ok {
				keys = append(keys, k)
				continue
			}
		}
		rest[k] = v
	}
	return rest, keys
}

// WeightFromProperties returns the first numeric weight-like property.
func WeightFromProperties(props map[string]any) (float64, bool) {
	for _, k := range WeightKeys {
		if v, ok := props[k]; ok {
			if f, ok := ToFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// ToFloat converts the numeric kinds found in records and store results.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
