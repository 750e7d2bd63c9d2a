package types

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// EntityType classifies a canonical entity.
type EntityType string

const (
	EntityTypeCompany   EntityType = "Company"
	EntityTypeCountry   EntityType = "Country"
	EntityTypeIndustry  EntityType = "Industry"
	EntityTypeIndicator EntityType = "Indicator"
	EntityTypeMetric    EntityType = "Metric"
	EntityTypeEvent     EntityType = "Event"
	EntityTypePerson    EntityType = "Person"
	EntityTypeProduct   EntityType = "Product"
	// EntityTypeGeneric is used when a source does not say what an entity is.
	EntityTypeGeneric EntityType = "Entity"
)

var entityTypeAliases = map[string]EntityType{
	"COMPANY":            EntityTypeCompany,
	"CORPORATION":        EntityTypeCompany,
	"ORGANIZATION":       EntityTypeCompany,
	"ORG":                EntityTypeCompany,
	"COUNTRY":            EntityTypeCountry,
	"NATION":             EntityTypeCountry,
	"LOCATION":           EntityTypeCountry,
	"INDUSTRY":           EntityTypeIndustry,
	"SECTOR":             EntityTypeIndustry,
	"INDICATOR":          EntityTypeIndicator,
	"ECONOMIC_INDICATOR": EntityTypeIndicator,
	"METRIC":             EntityTypeMetric,
	"FINANCIAL_METRIC":   EntityTypeMetric,
	"EVENT":              EntityTypeEvent,
	"RISK":               EntityTypeEvent,
	"RISK_EVENT":         EntityTypeEvent,
	"PERSON":             EntityTypePerson,
	"PRODUCT":            EntityTypeProduct,
	"ENTITY":             EntityTypeGeneric,
}

// NormalizeEntityType maps free-form type labels from sources onto the known
// entity types. Unknown labels become EntityTypeGeneric.
func NormalizeEntityType(raw string) EntityType {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if t, ok := entityTypeAliases[key]; ok {
		return t
	}
	return EntityTypeGeneric
}

// CanonicalEntity is the single deduplicated identity that a set of name
// variants resolves to.
type CanonicalEntity struct {
	ID            string         `json:"id"`
	CanonicalName string         `json:"canonical_name"`
	Type          EntityType     `json:"type"`
	Aliases       []string       `json:"aliases,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
	Provenance    []string       `json:"provenance,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Validate checks that the entity can be written to a store.
func (e *CanonicalEntity) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(e.CanonicalName) == "" {
		return ErrEmptyName
	}
	for k, v := range e.Properties {
		if !IsPropertyValue(v) {
			return fmt.Errorf("property %q: %w", k, ErrInvalidProperty)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can merge without touching shared state.
func (e *CanonicalEntity) Clone() *CanonicalEntity {
	if e == nil {
		return nil
	}
	out := *e
	out.Aliases = append([]string(nil), e.Aliases...)
	out.Provenance = append([]string(nil), e.Provenance...)
	out.Properties = CloneProperties(e.Properties)
	return &out
}

// EntityUpdate is an observation of an entity from one source record.
type EntityUpdate struct {
	Type       EntityType
	Alias      string
	Properties map[string]any
	SourceID   string
}

// MergeEntity applies an update to an existing entity and reports whether
// anything changed. Scalars are last-write-wins per key, list values are
// unioned, provenance and aliases only grow. Conflicts lists the scalar keys
// whose value was replaced.
func MergeEntity(existing *CanonicalEntity, upd EntityUpdate) (merged *CanonicalEntity, changed bool, conflicts []string) {
	merged = existing.Clone()
	if merged.Properties == nil {
		merged.Properties = map[string]any{}
	}

	if upd.Type != "" && upd.Type != EntityTypeGeneric && merged.Type != upd.Type {
		if merged.Type != "" && merged.Type != EntityTypeGeneric {
			conflicts = append(conflicts, "type")
		}
		merged.Type = upd.Type
		changed = true
	}
	if merged.Type == "" {
		merged.Type = EntityTypeGeneric
		changed = true
	}

	if upd.Alias != "" {
		var added bool
		merged.Aliases, added = UnionStrings(merged.Aliases, []string{upd.Alias})
		changed = changed || added
	}
	if upd.SourceID != "" {
		var added bool
		merged.Provenance, added = UnionStrings(merged.Provenance, []string{upd.SourceID})
		changed = changed || added
	}

	for _, k := range sortedKeys(upd.Properties) {
		v := upd.Properties[k]
		cur, ok := merged.Properties[k]
		if list, isList := asList(v); isList {
			curList, _ := asList(cur)
			union, added := unionValues(curList, list)
			if !ok || added {
				merged.Properties[k] = union
				changed = true
			}
			continue
		}
		if ok && reflect.DeepEqual(cur, v) {
			continue
		}
		if ok {
			conflicts = append(conflicts, k)
		}
		merged.Properties[k] = v
		changed = true
	}
	return merged, changed, conflicts
}

// IsPropertyValue reports whether v is a scalar or a flat list of scalars.
func IsPropertyValue(v any) bool {
	switch t := v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	case []string:
		return true
	case []any:
		for _, item := range t {
			if _, isList := asList(item); isList || !IsPropertyValue(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CloneProperties copies a property map including list values.
func CloneProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if list, ok := asList(v); ok {
			out[k] = append([]any(nil), list...)
			continue
		}
		out[k] = v
	}
	return out
}

// UnionStrings appends the members of add that are not already in base,
// keeping first-seen order.
func UnionStrings(base, add []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	out := append([]string(nil), base...)
	added := false
	for _, s := range add {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		added = true
	}
	return out, added
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func unionValues(base, add []any) ([]any, bool) {
	out := append([]any(nil), base...)
	added := false
	for _, v := range add {
		found := false
		for _, b := range out {
			if reflect.DeepEqual(b, v) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
			added = true
		}
	}
	return out, added
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
