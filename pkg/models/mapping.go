package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MappingSchema represents the root of a mapping file for a table copy job.
type MappingSchema struct {
	Entity         string                 `json:"entity" yaml:"entity"`
	SourceTable    string                 `json:"sourceTable" yaml:"sourceTable"`
	DestTable      string                 `json:"destTable" yaml:"destTable"`
	TimestampField string                 `json:"timestampField,omitempty" yaml:"timestampField,omitempty"`
	IDStrategy     IDStrategy             `json:"idStrategy" yaml:"idStrategy"`
	Fields         map[string]FieldConfig `json:"fields" yaml:"fields"`
}

// IDStrategy names the source paging key and the destination natural key.
// NaturalKey is the source column holding the natural key; it defaults to
// SourceField.
type IDStrategy struct {
	SourceField string `json:"sourceField" yaml:"sourceField"`
	DestField   string `json:"destField" yaml:"destField"`
	NaturalKey  string `json:"naturalKey,omitempty" yaml:"naturalKey,omitempty"`
	Type        string `json:"type" yaml:"type"`
}

type FieldConfig struct {
	Source   string      `json:"source" yaml:"source"`
	Dest     string      `json:"dest" yaml:"dest"`
	Type     string      `json:"type" yaml:"type"`
	Format   string      `json:"format,omitempty" yaml:"format,omitempty"`
	Required bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Default  interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// KeySource returns the source column the natural key is read from.
func (m *MappingSchema) KeySource() string {
	if m.IDStrategy.NaturalKey != "" {
		return m.IDStrategy.NaturalKey
	}
	return m.IDStrategy.SourceField
}

// Validate checks that the schema names everything a copy job needs.
func (m *MappingSchema) Validate() error {
	switch {
	case m.SourceTable == "":
		return fmt.Errorf("mapping %q: sourceTable is required", m.Entity)
	case m.DestTable == "":
		return fmt.Errorf("mapping %q: destTable is required", m.Entity)
	case m.IDStrategy.SourceField == "":
		return fmt.Errorf("mapping %q: idStrategy.sourceField is required", m.Entity)
	case m.IDStrategy.DestField == "":
		return fmt.Errorf("mapping %q: idStrategy.destField is required", m.Entity)
	}
	for name, f := range m.Fields {
		if f.Source == "" || f.Dest == "" {
			return fmt.Errorf("mapping %q: field %s needs both source and dest", m.Entity, name)
		}
		if f.Dest == m.IDStrategy.DestField {
			return fmt.Errorf("mapping %q: field %s writes the key column %s", m.Entity, name, f.Dest)
		}
	}
	return nil
}

func LoadMapping(data []byte) (*MappingSchema, error) {
	var m MappingSchema
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func LoadMappingYAML(data []byte) (*MappingSchema, error) {
	var m MappingSchema
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
