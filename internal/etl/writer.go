package etl

import (
	"context"
	"fmt"

	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/BartekS5/crm-migrate/pkg/utils"
)

// WriteFailure is a record that could not be written even on its own.
type WriteFailure struct {
	Record DestinationRecord
	Reason string
}

type WriteResult struct {
	Succeeded    int
	Failed       []WriteFailure
	BytesWritten int64
	BytesRemoved int64
}

func (r *WriteResult) merge(o WriteResult) {
	r.Succeeded += o.Succeeded
	r.Failed = append(r.Failed, o.Failed...)
	r.BytesWritten += o.BytesWritten
	r.BytesRemoved += o.BytesRemoved
}

// BatchWriter writes destination records in chunks of at most BatchSize,
// grouped by table and op. A chunk that fails is retried one record at a
// time so a single bad record only fails itself.
type BatchWriter struct {
	Store     store.Store
	BatchSize int
	DryRun    bool
	Validator *Validator
}

func NewBatchWriter(s store.Store, batchSize int, dryRun bool) *BatchWriter {
	return &BatchWriter{
		Store:     s,
		BatchSize: batchSize,
		DryRun:    dryRun,
		Validator: NewValidator(),
	}
}

type groupKey struct {
	table     string
	keyColumn string
	op        Op
}

func (w *BatchWriter) WriteBatch(ctx context.Context, records []DestinationRecord) WriteResult {
	var result WriteResult

	var order []groupKey
	groups := make(map[groupKey][]DestinationRecord)
	for _, rec := range records {
		if err := w.Validator.ValidateRecord(rec); err != nil {
			result.Failed = append(result.Failed, WriteFailure{Record: rec, Reason: err.Error()})
			logClass(ClassWrite, "invalid record for %s key=%v: %v", rec.Table, rec.Key, err)
			continue
		}
		g := groupKey{table: rec.Table, keyColumn: rec.KeyColumn, op: rec.Op}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], rec)
	}

	for _, g := range order {
		for _, chunk := range chunkRecords(groups[g], w.BatchSize) {
			if w.DryRun {
				result.merge(succeeded(chunk))
				continue
			}
			result.merge(w.writeChunk(ctx, g, chunk))
		}
	}
	return result
}

// chunkRecords splits records into chunks of at most size records. A chunk is
// also cut before a key that is already in it, since a single upsert
// statement cannot touch the same row twice.
func chunkRecords(records []DestinationRecord, size int) [][]DestinationRecord {
	if size < 1 {
		size = 1
	}
	var chunks [][]DestinationRecord
	var cur []DestinationRecord
	seen := make(map[string]struct{})
	for _, rec := range records {
		k := fmt.Sprintf("%T:%v", rec.Key, rec.Key)
		if _, dup := seen[k]; dup || len(cur) == size {
			chunks = append(chunks, cur)
			cur = nil
			seen = make(map[string]struct{})
		}
		cur = append(cur, rec)
		seen[k] = struct{}{}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func (w *BatchWriter) writeChunk(ctx context.Context, g groupKey, chunk []DestinationRecord) WriteResult {
	err := w.apply(ctx, g, chunk)
	if err == nil {
		return succeeded(chunk)
	}
	if ctx.Err() != nil {
		return failed(chunk, ctx.Err().Error())
	}

	logClass(ClassWrite, "%s of %d records into %s failed, retrying one by one: %v", g.op, len(chunk), g.table, err)
	var result WriteResult
	for _, rec := range chunk {
		single := []DestinationRecord{rec}
		if err := w.apply(ctx, g, single); err != nil {
			logClass(ClassWrite, "%s %s key=%v failed: %v", g.op, g.table, rec.Key, err)
			result.merge(failed(single, err.Error()))
			continue
		}
		result.merge(succeeded(single))
	}
	return result
}

func (w *BatchWriter) apply(ctx context.Context, g groupKey, chunk []DestinationRecord) error {
	switch g.op {
	case OpDelete:
		keys := make([]interface{}, len(chunk))
		for i, rec := range chunk {
			keys[i] = rec.Key
		}
		return w.Store.Delete(ctx, g.table, g.keyColumn, keys)
	default:
		rows := make([]store.Row, len(chunk))
		for i, rec := range chunk {
			rows[i] = rowOf(rec)
		}
		logger.Debugf("upserting %d rows into %s", len(rows), g.table)
		return w.Store.Upsert(ctx, g.table, g.keyColumn, rows)
	}
}

// rowOf returns the record's fields with the key column set.
func rowOf(rec DestinationRecord) store.Row {
	row := make(store.Row, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		row[k] = v
	}
	row[rec.KeyColumn] = rec.Key
	return row
}

func succeeded(chunk []DestinationRecord) WriteResult {
	res := WriteResult{Succeeded: len(chunk)}
	for _, rec := range chunk {
		if rec.Op == OpDelete {
			res.BytesRemoved += utils.EstimateSize(rec.Fields)
		} else {
			res.BytesWritten += utils.EstimateSize(rowOf(rec))
		}
	}
	return res
}

func failed(chunk []DestinationRecord, reason string) WriteResult {
	res := WriteResult{}
	for _, rec := range chunk {
		res.Failed = append(res.Failed, WriteFailure{Record: rec, Reason: reason})
	}
	return res
}
