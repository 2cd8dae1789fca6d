package jobs

import (
	"time"

	"github.com/BartekS5/crm-migrate/internal/etl"
	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/BartekS5/crm-migrate/pkg/store"
)

// TableJob copies schema.SourceTable into schema.DestTable. When the mapping
// names a timestampField and since is set, only newer rows are copied.
func TableJob(schema *models.MappingSchema, since time.Time) etl.Job {
	var filter *store.Filter
	if schema.TimestampField != "" && !since.IsZero() {
		filter = &store.Filter{Column: schema.TimestampField, Since: since}
	}
	name := schema.Entity
	if name == "" {
		name = schema.SourceTable + "-to-" + schema.DestTable
	}
	return etl.Job{
		Name:     name,
		Source:   schema.SourceTable,
		OrderKey: schema.IDStrategy.SourceField,
		Filter:   filter,
		Targets: []etl.Target{
			{Table: schema.DestTable, KeyColumn: schema.IDStrategy.DestField, Op: etl.OpUpsert},
		},
		Transformer: etl.NewMappingTransformer(schema),
	}
}
