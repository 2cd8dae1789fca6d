package etl

import (
	"strings"

	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/BartekS5/crm-migrate/pkg/utils"
)

// MappingTransformer copies a row into the destination table named by a
// mapping schema, renaming and converting the mapped fields.
type MappingTransformer struct {
	Config *models.MappingSchema
}

func NewMappingTransformer(config *models.MappingSchema) *MappingTransformer {
	return &MappingTransformer{Config: config}
}

func (t *MappingTransformer) Transform(src SourceRecord) ([]DestinationRecord, error) {
	keyCol := t.Config.KeySource()
	key, err := t.convertKey(src.Row[keyCol])
	if err != nil {
		return nil, Skip("natural key %s: %v", keyCol, err)
	}
	if key == nil {
		return nil, Skip("missing natural key %s", keyCol)
	}

	fields := make(store.Row, len(t.Config.Fields))
	for name, fieldCfg := range t.Config.Fields {
		val, exists := src.Row[fieldCfg.Source]
		if !exists || val == nil {
			if fieldCfg.Required {
				return nil, Skip("missing required field %s", name)
			}
			val = fieldCfg.Default
		}
		converted, err := utils.ConvertValue(val, fieldCfg)
		if err != nil {
			return nil, Skip("field %s: %v", name, err)
		}
		fields[fieldCfg.Dest] = converted
	}

	return []DestinationRecord{{
		Table:     t.Config.DestTable,
		KeyColumn: t.Config.IDStrategy.DestField,
		Key:       key,
		Op:        OpUpsert,
		Fields:    fields,
		SourceKey: src.Key,
	}}, nil
}

func (t *MappingTransformer) convertKey(val interface{}) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch t.Config.IDStrategy.Type {
	case "int", "long":
		return utils.ConvertToInt64(val)
	case "string":
		s := strings.TrimSpace(utils.ToString(val))
		if s == "" {
			return nil, nil
		}
		return s, nil
	default:
		return utils.NormalizeKey(val), nil
	}
}
