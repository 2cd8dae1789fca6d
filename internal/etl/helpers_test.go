package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/database"
	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// openTestDB returns a file backed SQLite store with an empty source_rows
// table and an empty dest_rows table whose name column is NOT NULL.
func openTestDB(t *testing.T) (*sql.DB, *store.SQLStore) {
	t.Helper()
	db, err := database.ConnectSQL(context.Background(), "sqlite", filepath.Join(t.TempDir(), "etl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE source_rows (id INTEGER PRIMARY KEY, email TEXT, name TEXT, created_at DATETIME);
		CREATE TABLE dest_rows (email TEXT PRIMARY KEY, name TEXT NOT NULL);
	`)
	require.NoError(t, err)
	return db, store.NewSQLStore(db, store.DialectSQLite)
}

// seedSource inserts n rows with ids 1..n. mutate may override the email and
// name of a row; returning nil stores NULL.
func seedSource(t *testing.T, db *sql.DB, n int, mutate func(id int) (email, name interface{})) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tx, err := db.Begin()
	require.NoError(t, err)
	stmt, err := tx.Prepare(`INSERT INTO source_rows (id, email, name, created_at) VALUES (?, ?, ?, ?)`)
	require.NoError(t, err)
	for id := 1; id <= n; id++ {
		var email, name interface{} = emailFor(id), fmt.Sprintf("Contact %d", id)
		if mutate != nil {
			email, name = mutate(id)
		}
		_, err := stmt.Exec(id, email, name, base.Add(time.Duration(id)*time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
}

func emailFor(id int) string {
	return fmt.Sprintf("contact%04d@example.com", id)
}

func contactsSchema() *models.MappingSchema {
	return &models.MappingSchema{
		Entity:      "contacts",
		SourceTable: "source_rows",
		DestTable:   "dest_rows",
		IDStrategy: models.IDStrategy{
			SourceField: "id",
			DestField:   "email",
			NaturalKey:  "email",
			Type:        "string",
		},
		Fields: map[string]models.FieldConfig{
			"name": {Source: "name", Dest: "name", Type: "string"},
		},
	}
}

func contactsJob() Job {
	return Job{
		Name:        "contacts",
		Source:      "source_rows",
		OrderKey:    "id",
		Targets:     []Target{{Table: "dest_rows", KeyColumn: "email", Op: OpUpsert}},
		Transformer: NewMappingTransformer(contactsSchema()),
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ReadRetries = 0
	return opts
}

func countRows(t *testing.T, s store.Store, table string) int64 {
	t.Helper()
	n, err := s.Count(context.Background(), table, nil)
	require.NoError(t, err)
	return n
}

// flakyStore fails full reads of the page after failAfter. Key-only probes
// still succeed.
type flakyStore struct {
	store.Store
	failAfter interface{}
	failures  int // remaining failures, -1 for always
	reads     int
}

func (f *flakyStore) SelectPage(ctx context.Context, q store.PageQuery) ([]store.Row, error) {
	f.reads++
	if q.After == f.failAfter && len(q.Columns) != 1 && f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.SelectPage(ctx, q)
}

// countingStore counts page reads.
type countingStore struct {
	store.Store
	reads int
}

func (c *countingStore) SelectPage(ctx context.Context, q store.PageQuery) ([]store.Row, error) {
	c.reads++
	return c.Store.SelectPage(ctx, q)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SelectPage(ctx context.Context, q store.PageQuery) ([]store.Row, error) {
	args := m.Called(ctx, q)
	rows, _ := args.Get(0).([]store.Row)
	return rows, args.Error(1)
}

func (m *mockStore) Upsert(ctx context.Context, table, keyColumn string, rows []store.Row) error {
	return m.Called(ctx, table, keyColumn, rows).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, table, keyColumn string, keys []interface{}) error {
	return m.Called(ctx, table, keyColumn, keys).Error(0)
}

func (m *mockStore) Count(ctx context.Context, table string, f *store.Filter) (int64, error) {
	args := m.Called(ctx, table, f)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Close() error {
	return nil
}

// fakeSchema creates dest_rows like tables and records what it drops.
type fakeSchema struct {
	db      *sql.DB
	created []string
	dropped []string
}

func (f *fakeSchema) EnsureTables(ctx context.Context, tables []store.TableSpec) ([]string, error) {
	for _, t := range tables {
		q := fmt.Sprintf(`CREATE TABLE %s (%s TEXT PRIMARY KEY, name TEXT NOT NULL)`, t.Name, t.KeyColumn)
		if _, err := f.db.ExecContext(ctx, q); err != nil {
			return f.created, err
		}
		f.created = append(f.created, t.Name)
	}
	return f.created, nil
}

func (f *fakeSchema) DropTables(ctx context.Context, tables []string) error {
	for _, t := range tables {
		if _, err := f.db.ExecContext(ctx, "DROP TABLE "+t); err != nil {
			return err
		}
	}
	f.dropped = append(f.dropped, tables...)
	return nil
}
