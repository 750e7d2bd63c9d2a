package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceMapping says how the fields of a structured record become an entity
// and its relationships. It is usually loaded from a YAML file:
//
//	name: suppliers
//	entity_key: company
//	entity_type: Company
//	property_keys: [revenue, sector]
//	relationships:
//	  - type: DEPENDS_ON
//	    target_key: supplier
//	    target_type: Company
//	    weight_key: criticality
type SourceMapping struct {
	Name string `yaml:"name"`
	// Root is the JSON key holding the record array, used by ReadJSONRecords.
	Root       string `yaml:"root"`
	EntityKey  string `yaml:"entity_key"`
	EntityType string `yaml:"entity_type"`
	// TypeKey names a field holding the entity type; it wins over EntityType.
	TypeKey string `yaml:"type_key"`
	// PropertyKeys limits which fields become properties. Empty means every
	// scalar field that is not used as a name or type.
	PropertyKeys  []string           `yaml:"property_keys"`
	Relationships []RelationshipSpec `yaml:"relationships"`
}

// RelationshipSpec describes one relationship implied by a record.
type RelationshipSpec struct {
	Type          string `yaml:"type"`
	TargetKey     string `yaml:"target_key"`
	TargetType    string `yaml:"target_type"`
	TargetTypeKey string `yaml:"target_type_key"`
	// Reverse makes the target the source of the relationship.
	Reverse bool `yaml:"reverse"`
	// WeightKey names the field read as the weight. Without it the first of
	// weight, severity, criticality among the relationship properties is used.
	WeightKey    string         `yaml:"weight_key"`
	PropertyKeys []string       `yaml:"property_keys"`
	Properties   map[string]any `yaml:"properties"`
}

// LoadMapping reads a YAML mapping file.
func LoadMapping(path string) (*SourceMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping %s: %w", path, err)
	}
	m, err := ParseMapping(data)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return m, nil
}

// ParseMapping decodes and validates a YAML mapping.
func ParseMapping(data []byte) (*SourceMapping, error) {
	var m SourceMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the mapping names an entity field and that every
// relationship has a type and a target field.
func (m *SourceMapping) Validate() error {
	if m.EntityKey == "" {
		return fmt.Errorf("mapping has no entity_key")
	}
	for i, rs := range m.Relationships {
		if rs.Type == "" {
			return fmt.Errorf("relationship %d has no type", i)
		}
		if rs.TargetKey == "" {
			return fmt.Errorf("relationship %d (%s) has no target_key", i, rs.Type)
		}
	}
	return nil
}

// reservedKeys are the fields consumed as names or types.
func (m *SourceMapping) reservedKeys() map[string]struct{} {
	keys := map[string]struct{}{m.EntityKey: {}}
	if m.TypeKey != "" {
		keys[m.TypeKey] = struct{}{}
	}
	for _, rs := range m.Relationships {
		keys[rs.TargetKey] = struct{}{}
		if rs.TargetTypeKey != "" {
			keys[rs.TargetTypeKey] = struct{}{}
		}
	}
	return keys
}
