package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/sirupsen/logrus"
)

// State is a step of the migration state machine.
type State string

const (
	StateInit         State = "INIT"
	StateReading      State = "READING"
	StateTransforming State = "TRANSFORMING"
	StateWriting      State = "WRITING"
	StateVerifying    State = "VERIFYING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

type CapPolicy string

const (
	CapStop CapPolicy = "stop"
	CapFail CapPolicy = "fail"
)

type ReadErrorPolicy string

const (
	ReadAbort ReadErrorPolicy = "abort"
	ReadSkip  ReadErrorPolicy = "skip"
)

// Options configure a Pipeline. Zero caps mean unlimited.
type Options struct {
	DryRun         bool
	BatchSize      int
	WriteBatchSize int
	MaxIterations  int
	MaxRows        int
	CapPolicy      CapPolicy
	OnReadError    ReadErrorPolicy
	ReadRetries    int
	BatchDelay     time.Duration
	CreateSchema   bool
	Verify         bool
	CheckpointPath string
}

func DefaultOptions() Options {
	return Options{
		BatchSize:      100,
		WriteBatchSize: 50,
		CapPolicy:      CapStop,
		OnReadError:    ReadAbort,
		ReadRetries:    2,
		Verify:         true,
	}
}

// Pipeline drives one job: INIT, then READING, TRANSFORMING and WRITING once
// per page, then VERIFYING and DONE. Any fatal error ends in FAILED.
type Pipeline struct {
	Job     Job
	Source  store.Store
	Dest    store.Store
	Schema  store.SchemaManager
	Reader  Reader
	Writer  Writer
	Options Options

	state State
	log   *logrus.Entry
}

// NewPipeline wires the default paged reader and batch writer for job.
// schema may be nil when the destination cannot create tables.
func NewPipeline(job Job, source, dest store.Store, schema store.SchemaManager, opts Options) *Pipeline {
	return &Pipeline{
		Job:     job,
		Source:  source,
		Dest:    dest,
		Schema:  schema,
		Reader:  NewPagedReader(source, job, opts.BatchSize, opts.ReadRetries, opts.BatchDelay),
		Writer:  NewBatchWriter(dest, opts.WriteBatchSize, opts.DryRun),
		Options: opts,
	}
}

func (p *Pipeline) enter(s State) {
	if p.state != s {
		p.log.Debugf("state %s -> %s", p.state, s)
	}
	p.state = s
}

// Run executes the job. The returned report is never nil; on failure it
// carries the counts reached so far and err says why.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	p.log = logger.WithField("job", p.Job.Name)
	p.state = ""
	report := newReport(p.Job.Name, p.Options.DryRun)
	report.StartedAt = time.Now()

	p.log.Infof("Starting pipeline. Source: %s, Batch Size: %d, Write Batch Size: %d, DryRun: %v",
		p.Job.Source, p.Options.BatchSize, p.Options.WriteBatchSize, p.Options.DryRun)

	var created []string
	err := p.execute(ctx, report, &created)
	report.FinishedAt = time.Now()

	if err != nil {
		p.enter(StateFailed)
		report.State = StateFailed
		report.Error = err.Error()
		if errors.Is(err, ErrAborted) {
			logClass(ClassAbort, "stopped after %d pages at cursor %v; destination writes so far are kept, re-run to continue",
				report.Pages, report.LastCursor)
		} else {
			p.rollback(created)
		}
		p.log.WithFields(report.Fields()).Error("Pipeline failed.")
		return report, err
	}

	p.enter(StateDone)
	report.State = StateDone
	if !p.Options.DryRun {
		if err := RemoveCheckpoint(p.Options.CheckpointPath); err != nil {
			p.log.Warnf("could not remove checkpoint %s: %v", p.Options.CheckpointPath, err)
		}
	}
	p.log.WithFields(report.Fields()).Info("Pipeline finished successfully.")
	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, report *Report, created *[]string) error {
	p.enter(StateInit)
	if err := p.preflight(ctx, created); err != nil {
		return err
	}

	var before map[string]int64
	if p.verifying() {
		var err error
		if before, err = p.countDeleteTargets(ctx); err != nil {
			logClass(ClassVerify, "could not count rows before the run: %v", err)
		}
	}

	var cursor interface{}
	if !p.Options.DryRun {
		cp, err := LoadCheckpoint(p.Options.CheckpointPath, p.Job.Name)
		if err != nil {
			p.log.Warnf("ignoring checkpoint: %v", err)
		} else if cp != nil {
			cursor = cp.Cursor
			report.ResumedFrom = cp.Cursor
			p.log.Infof("Resuming from checkpoint at cursor %v (%d rows in earlier runs)", cp.Cursor, cp.Total)
		}
	}
	report.LastCursor = cursor

	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		if capErr := p.checkCaps(&report.Stats); capErr != nil {
			if p.Options.CapPolicy == CapFail {
				logClass(ClassCap, "%v", capErr)
				return fmt.Errorf("%w: %v", ErrCapReached, capErr)
			}
			logClass(ClassCap, "%v, stopping early; the report is truncated", capErr)
			report.Truncated = true
			break
		}

		p.enter(StateReading)
		page, err := p.Reader.NextPage(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
			}
			page, err = p.handleReadError(ctx, cursor, err, &report.Stats)
			if err != nil {
				return err
			}
			cursor = page.Cursor
			report.LastCursor = cursor
			p.saveCheckpoint(cursor, &report.Stats)
			if page.Done {
				break
			}
			continue
		}
		if len(page.Records) == 0 {
			p.log.Info("No more data to process.")
			break
		}

		records, next := page.Records, page.Cursor
		if limit := int64(p.Options.MaxRows); limit > 0 && report.Total+int64(len(records)) > limit {
			records = records[:int(limit-report.Total)]
			next = records[len(records)-1].Key
			page.Done = false
		}

		p.processPage(ctx, records, &report.Stats)
		if ctx.Err() != nil {
			// the page may be partly written; leave the cursor before it so a
			// resumed run writes it again
			return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		cursor = next
		report.LastCursor = cursor
		p.saveCheckpoint(cursor, &report.Stats)

		p.log.WithFields(report.Fields()).Infof("Batch done. Cursor: %v", cursor)

		if page.Done {
			break
		}
		if err := wait(ctx, p.Options.BatchDelay); err != nil {
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
	}

	if p.verifying() {
		p.enter(StateVerifying)
		report.Verification = p.verify(ctx, &report.Stats, before)
	} else if p.Options.Verify && p.Options.DryRun {
		p.log.Info("Verification skipped in dry run.")
	}
	return nil
}

func (p *Pipeline) verifying() bool {
	return p.Options.Verify && !p.Options.DryRun
}

func (p *Pipeline) checkCaps(s *Stats) error {
	if p.Options.MaxIterations > 0 && s.Pages >= p.Options.MaxIterations {
		return fmt.Errorf("MAX_ITERATIONS=%d reached", p.Options.MaxIterations)
	}
	if p.Options.MaxRows > 0 && s.Total >= int64(p.Options.MaxRows) {
		return fmt.Errorf("MAX_ROWS=%d reached", p.Options.MaxRows)
	}
	return nil
}

// handleReadError applies the read error policy. With skip, the page's keys
// are probed so the cursor can move past it; its rows count as errored.
func (p *Pipeline) handleReadError(ctx context.Context, cursor interface{}, readErr error, s *Stats) (Page, error) {
	logClass(ClassRead, "page after cursor %v (size %d) in %s failed: %v", cursor, p.Options.BatchSize, p.Job.Source, readErr)
	if p.Options.OnReadError != ReadSkip {
		return Page{}, fmt.Errorf("%w: page after cursor %v: %v", ErrReadFailed, cursor, readErr)
	}

	probe, err := p.Reader.SkipPage(ctx, cursor)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		logClass(ClassRead, "cannot probe keys after cursor %v either, aborting: %v", cursor, err)
		return Page{}, fmt.Errorf("%w: page after cursor %v: %v", ErrReadFailed, cursor, readErr)
	}
	if len(probe.Records) == 0 {
		probe.Done = true
		return probe, nil
	}

	s.Pages++
	s.SkippedPages++
	for _, rec := range probe.Records {
		s.Total++
		s.Errored++
		s.addFailure(Failure{Key: rec.Key, Table: p.Job.Source, Class: ClassRead, Reason: readErr.Error()})
	}
	logClass(ClassRead, "skipped page with keys %v..%v (%d rows)",
		probe.Records[0].Key, probe.Records[len(probe.Records)-1].Key, len(probe.Records))
	return probe, nil
}

// processPage transforms and writes one page and updates the counters.
func (p *Pipeline) processPage(ctx context.Context, records []SourceRecord, s *Stats) {
	p.enter(StateTransforming)
	var out []DestinationRecord
	produced := make(map[string]bool, len(records))
	for _, src := range records {
		s.Total++
		dest, err := p.Job.Transformer.Transform(src)
		if err == nil && len(dest) == 0 {
			err = Skip("no output")
		}
		if err != nil {
			reason := skipReason(err)
			s.Skipped++
			s.addSkip(Failure{Key: src.Key, Table: p.Job.Source, Class: ClassSkip, Reason: reason})
			logClass(ClassSkip, "%s key=%v: %s", p.Job.Source, src.Key, reason)
			continue
		}
		for i := range dest {
			if dest[i].SourceKey == nil {
				dest[i].SourceKey = src.Key
			}
		}
		produced[sourceID(src.Key)] = true
		out = append(out, dest...)
	}

	p.enter(StateWriting)
	res := p.Writer.WriteBatch(ctx, out)

	failedSources := make(map[string]bool)
	for _, f := range res.Failed {
		failedSources[sourceID(f.Record.SourceKey)] = true
		s.addFailure(Failure{Key: f.Record.Key, Table: f.Record.Table, Class: ClassWrite, Reason: f.Reason})
	}
	for _, src := range records {
		id := sourceID(src.Key)
		if !produced[id] {
			continue
		}
		if failedSources[id] {
			s.Errored++
		} else {
			s.Migrated++
		}
	}
	s.Pages++
	s.Records += int64(res.Succeeded)
	s.BytesWritten += res.BytesWritten
	s.BytesRemoved += res.BytesRemoved
}

func sourceID(key interface{}) string {
	return fmt.Sprintf("%T:%v", key, key)
}

func (p *Pipeline) saveCheckpoint(cursor interface{}, s *Stats) {
	if p.Options.DryRun || p.Options.CheckpointPath == "" {
		return
	}
	cp := Checkpoint{Job: p.Job.Name, Cursor: cursor, Pages: s.Pages, Total: s.Total}
	if err := SaveCheckpoint(p.Options.CheckpointPath, cp); err != nil {
		p.log.Warnf("could not save checkpoint: %v", err)
	}
}
