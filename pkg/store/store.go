// Package store defines the small query/mutate surface the migration engine
// needs from a backend, plus implementations for SQL databases, MongoDB and
// Supabase.
package store

import (
	"context"
	"errors"
	"time"
)

// Row is a single backend row keyed by column (or document field) name.
type Row map[string]interface{}

// ErrTableNotFound is returned when a table or collection does not exist.
var ErrTableNotFound = errors.New("table not found")

// Filter scopes a query by a timestamp column. Zero times are ignored.
type Filter struct {
	Column string
	Since  time.Time // inclusive lower bound
	Before time.Time // exclusive upper bound
}

// IsZero reports whether the filter restricts nothing.
func (f *Filter) IsZero() bool {
	return f == nil || f.Column == "" || (f.Since.IsZero() && f.Before.IsZero())
}

// PageQuery describes one keyset page: rows with OrderKey > After, ascending,
// at most Limit rows. A nil After starts from the beginning.
type PageQuery struct {
	Table    string
	OrderKey string
	After    interface{}
	Limit    int
	Columns  []string // empty means all columns
	Filter   *Filter
}

// Store is the backend-neutral surface used by the engine.
type Store interface {
	SelectPage(ctx context.Context, q PageQuery) ([]Row, error)
	// Upsert inserts rows or updates them in place when keyColumn already matches.
	Upsert(ctx context.Context, table, keyColumn string, rows []Row) error
	Delete(ctx context.Context, table, keyColumn string, keys []interface{}) error
	Count(ctx context.Context, table string, f *Filter) (int64, error)
	Close() error
}

// SchemaInspector is implemented by stores that can report whether a table exists.
type SchemaInspector interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// TableSpec names a destination table and the natural key it is upserted on.
type TableSpec struct {
	Name      string
	KeyColumn string
}

// SchemaManager is implemented by stores that can create the destination
// tables a job needs and drop them again.
type SchemaManager interface {
	// EnsureTables creates missing tables and returns the names it created.
	EnsureTables(ctx context.Context, tables []TableSpec) ([]string, error)
	DropTables(ctx context.Context, tables []string) error
}
