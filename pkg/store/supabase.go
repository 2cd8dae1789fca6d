package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStore implements Store over the PostgREST API of a Supabase project.
// It should be given the service role key so row level security does not
// hide rows from the migration.
type SupabaseStore struct {
	Client *supabase.Client
}

func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{Client: client}
}

func filterValue(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func applyFilter(fb *postgrest.FilterBuilder, f *Filter) *postgrest.FilterBuilder {
	if f.IsZero() {
		return fb
	}
	if !f.Since.IsZero() {
		fb = fb.Gte(f.Column, filterValue(f.Since))
	}
	if !f.Before.IsZero() {
		fb = fb.Lt(f.Column, filterValue(f.Before))
	}
	return fb
}

func (s *SupabaseStore) SelectPage(ctx context.Context, q PageQuery) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ",")
	}
	fb := s.Client.From(q.Table).Select(cols, "", false)
	if q.After != nil {
		fb = fb.Gt(q.OrderKey, filterValue(q.After))
	}
	fb = applyFilter(fb, q.Filter).
		Order(q.OrderKey, &postgrest.OrderOpts{Ascending: true}).
		Limit(q.Limit, "")

	body, _, err := fb.Execute()
	if err != nil {
		return nil, fmt.Errorf("select page from %s: %w", q.Table, err)
	}

	// UseNumber keeps bigint keys exact when they are sent back as cursors.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode page from %s: %w", q.Table, err)
	}
	rows := make([]Row, len(raw))
	for i, r := range raw {
		rows[i] = Row(r)
	}
	return rows, nil
}

func (s *SupabaseStore) Upsert(ctx context.Context, table, keyColumn string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		payload[i] = map[string]interface{}(r)
	}
	if _, _, err := s.Client.From(table).Upsert(payload, keyColumn, "minimal", "").Execute(); err != nil {
		return fmt.Errorf("upsert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

func (s *SupabaseStore) Delete(ctx context.Context, table, keyColumn string, keys []interface{}) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = filterValue(k)
	}
	if _, _, err := s.Client.From(table).Delete("minimal", "").In(keyColumn, values).Execute(); err != nil {
		return fmt.Errorf("delete %d rows from %s: %w", len(keys), table, err)
	}
	return nil
}

func (s *SupabaseStore) Count(ctx context.Context, table string, f *Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, n, err := applyFilter(s.Client.From(table).Select("*", "exact", true), f).Execute()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// TableExists probes the table for a single row. PostgREST reports unknown
// relations as errors, which are mapped to false. A GET is used rather than
// HEAD since only the error body carries the code.
func (s *SupabaseStore) TableExists(ctx context.Context, table string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, _, err := s.Client.From(table).Select("*", "", false).Limit(1, "").Execute()
	if err == nil {
		return true, nil
	}
	msg := err.Error()
	if strings.Contains(msg, "PGRST205") || strings.Contains(msg, "42P01") || strings.Contains(msg, "does not exist") {
		return false, nil
	}
	return false, fmt.Errorf("probe table %s: %w", table, err)
}

func (s *SupabaseStore) Close() error {
	return nil
}
