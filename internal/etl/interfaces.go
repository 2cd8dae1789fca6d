package etl

import (
	"context"

	"github.com/BartekS5/crm-migrate/pkg/store"
)

// Op is the mutation a DestinationRecord asks for.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// SourceRecord is one source row. Key is the value of the paging key.
type SourceRecord struct {
	Key interface{}
	Row store.Row
}

// DestinationRecord is one write produced by a Transformer. Key is the natural
// key for upserts and the primary key for deletes. For deletes, Fields may
// carry the removed row; it is only used to estimate reclaimed storage.
type DestinationRecord struct {
	Table     string
	KeyColumn string
	Key       interface{}
	Op        Op
	Fields    store.Row
	SourceKey interface{}
}

// Page is one keyset page. Cursor is the last key in the page and is passed
// back to get the next one. Done is set once the source has no more rows.
type Page struct {
	Records []SourceRecord
	Cursor  interface{}
	Done    bool
}

type Reader interface {
	NextPage(ctx context.Context, cursor interface{}) (Page, error)
	// SkipPage reads only the keys of the page after cursor so a page whose
	// full read keeps failing can be stepped over.
	SkipPage(ctx context.Context, cursor interface{}) (Page, error)
}

// Transformer maps a source row to zero or more destination records. It must
// be deterministic and free of I/O. Returning a *SkipError (see Skip) marks
// the row as skipped.
type Transformer interface {
	Transform(src SourceRecord) ([]DestinationRecord, error)
}

// TransformFunc adapts a plain function to Transformer.
type TransformFunc func(src SourceRecord) ([]DestinationRecord, error)

func (f TransformFunc) Transform(src SourceRecord) ([]DestinationRecord, error) {
	return f(src)
}

type Writer interface {
	WriteBatch(ctx context.Context, records []DestinationRecord) WriteResult
}

// Target is a destination table a job writes to.
type Target struct {
	Table     string
	KeyColumn string
	Op        Op
}

// Job describes what a Pipeline migrates: where rows come from, how they are
// transformed and which tables receive them.
type Job struct {
	Name        string
	Source      string
	OrderKey    string
	Columns     []string
	Filter      *store.Filter
	Targets     []Target
	Transformer Transformer
}
