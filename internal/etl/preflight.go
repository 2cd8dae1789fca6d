package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/store"
)

// preflight checks that the source and every destination table exist. With
// CreateSchema, missing upsert targets are created and their names appended
// to created so a failed run can drop them again.
func (p *Pipeline) preflight(ctx context.Context, created *[]string) error {
	if p.Job.Transformer == nil {
		return fmt.Errorf("%w: job %s has no transformer", ErrPrecondition, p.Job.Name)
	}

	srcOK, err := tableExists(ctx, p.Source, p.Job.Source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	if !srcOK {
		logClass(ClassPrecondition, "source table %s does not exist", p.Job.Source)
		return fmt.Errorf("%w: source table %s does not exist", ErrPrecondition, p.Job.Source)
	}

	var missing []store.TableSpec
	for _, t := range p.Job.Targets {
		ok, err := tableExists(ctx, p.Dest, t.Table)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPrecondition, err)
		}
		if ok {
			continue
		}
		if t.Op == OpDelete {
			logClass(ClassPrecondition, "table %s to delete from does not exist", t.Table)
			return fmt.Errorf("%w: table %s does not exist", ErrPrecondition, t.Table)
		}
		missing = append(missing, store.TableSpec{Name: t.Table, KeyColumn: t.KeyColumn})
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = m.Name
	}
	if !p.Options.CreateSchema || p.Schema == nil {
		logClass(ClassPrecondition, "destination tables %v do not exist (set CREATE_SCHEMA=true to create them)", names)
		return fmt.Errorf("%w: destination tables %v do not exist", ErrPrecondition, names)
	}
	if p.Options.DryRun {
		p.log.Infof("[DRY RUN] Would create destination tables %v", names)
		return nil
	}

	p.log.Infof("Creating destination tables %v", names)
	made, err := p.Schema.EnsureTables(ctx, missing)
	*created = append(*created, made...)
	if err != nil {
		logClass(ClassPrecondition, "could not create destination tables: %v", err)
		return fmt.Errorf("%w: create destination tables: %v", ErrPrecondition, err)
	}
	for _, name := range names {
		ok, err := tableExists(ctx, p.Dest, name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPrecondition, err)
		}
		if !ok {
			logClass(ClassPrecondition, "destination table %s is still missing after schema creation", name)
			return fmt.Errorf("%w: destination table %s is still missing", ErrPrecondition, name)
		}
	}
	return nil
}

// tableExists asks s when it can answer and assumes the table exists when it
// cannot.
func tableExists(ctx context.Context, s store.Store, table string) (bool, error) {
	inspector, ok := s.(store.SchemaInspector)
	if !ok {
		return true, nil
	}
	return inspector.TableExists(ctx, table)
}

// rollback drops the tables created in this run. It uses its own context so
// it still runs after the run context was cancelled.
func (p *Pipeline) rollback(created []string) {
	if len(created) == 0 || p.Schema == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p.log.Warnf("Rolling back tables created in this run: %v", created)
	if err := p.Schema.DropTables(ctx, created); err != nil {
		p.log.Errorf("Rollback failed, drop %v by hand: %v", created, err)
		return
	}
	p.log.Info("Rollback completed.")
}
