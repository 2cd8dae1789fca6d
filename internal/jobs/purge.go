package jobs

import (
	"time"

	"github.com/BartekS5/crm-migrate/internal/etl"
	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/BartekS5/crm-migrate/pkg/store"
)

// Purge turns every source row into a delete of that row by primary key.
type Purge struct {
	Table     string
	KeyColumn string
}

func (p Purge) Transform(src etl.SourceRecord) ([]etl.DestinationRecord, error) {
	if src.Key == nil {
		return nil, etl.Skip("missing %s", p.KeyColumn)
	}
	return []etl.DestinationRecord{{
		Table:     p.Table,
		KeyColumn: p.KeyColumn,
		Key:       src.Key,
		Op:        etl.OpDelete,
		Fields:    src.Row,
		SourceKey: src.Key,
	}}, nil
}

// CleanupJob deletes emails created before cutoff. A zero cutoff deletes
// every email.
func CleanupJob(cutoff time.Time) etl.Job {
	var filter *store.Filter
	if !cutoff.IsZero() {
		filter = &store.Filter{Column: emailScopeColumn, Before: cutoff}
	}
	name := "cleanup-emails"
	if filter == nil {
		name = "delete-all-emails"
	}
	return etl.Job{
		Name:     name,
		Source:   models.EmailsTable,
		OrderKey: emailKeyColumn,
		Filter:   filter,
		Targets: []etl.Target{
			{Table: models.EmailsTable, KeyColumn: emailKeyColumn, Op: etl.OpDelete},
		},
		Transformer: Purge{Table: models.EmailsTable, KeyColumn: emailKeyColumn},
	}
}
