package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestUpsertSQL_Postgres(t *testing.T) {
	s := &SQLStore{Dialect: DialectPostgres}
	rows := []Row{
		{"message_id": "m1", "subject": "hi"},
		{"message_id": "m2"},
	}
	query, args, err := s.upsertSQL("email_index", "message_id", columnsOf(rows), rows)
	require.NoError(t, err)

	assert.Equal(t,
		`INSERT INTO "email_index" ("message_id", "subject") VALUES ($1, $2), ($3, $4) `+
			`ON CONFLICT ("message_id") DO UPDATE SET "subject" = excluded."subject"`,
		query)
	assert.Equal(t, []interface{}{"m1", "hi", "m2", nil}, args)
}

func TestUpsertSQL_KeyOnlyDoesNothingOnConflict(t *testing.T) {
	s := &SQLStore{Dialect: DialectSQLite}
	rows := []Row{{"id": 1}}
	query, _, err := s.upsertSQL("t", "id", columnsOf(rows), rows)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "t" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`, query)
}

func TestUpsertSQL_SQLServerMerge(t *testing.T) {
	s := &SQLStore{Dialect: DialectSQLServer}
	rows := []Row{{"id": 1, "name": "a"}}
	query, args, err := s.upsertSQL("dbo.people", "id", columnsOf(rows), rows)
	require.NoError(t, err)

	assert.Equal(t,
		`MERGE INTO [dbo].[people] AS target USING (VALUES (@p1, @p2)) AS source ([id], [name]) `+
			`ON target.[id] = source.[id] WHEN MATCHED THEN UPDATE SET target.[name] = source.[name] `+
			`WHEN NOT MATCHED THEN INSERT ([id], [name]) VALUES (source.[id], source.[name]);`,
		query)
	assert.Len(t, args, 2)
}

func TestWhereClause(t *testing.T) {
	s := &SQLStore{Dialect: DialectPostgres}
	var args []interface{}
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	where, err := s.whereClause("id", int64(10), &Filter{Column: "created_at", Since: since}, &args)
	require.NoError(t, err)
	assert.Equal(t, ` WHERE "id" > $1 AND "created_at" >= $2`, where)
	assert.Equal(t, []interface{}{int64(10), since}, args)

	args = nil
	where, err = s.whereClause("", nil, nil, &args)
	require.NoError(t, err)
	assert.Empty(t, where)
}

func TestFilterIsZero(t *testing.T) {
	var f *Filter
	assert.True(t, f.IsZero())
	assert.True(t, (&Filter{Column: "created_at"}).IsZero())
	assert.False(t, (&Filter{Column: "created_at", Before: time.Now()}).IsZero())
}

func TestMongoFilter(t *testing.T) {
	before := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := mongoFilter("_id", "abc", &Filter{Column: "created_at", Before: before})
	assert.Equal(t, "abc", f["_id"].(bson.M)["$gt"])
	assert.Equal(t, before, f["created_at"].(bson.M)["$lt"])
}

func TestRowsPerStatement(t *testing.T) {
	tests := []struct {
		dialect Dialect
		cols    int
		want    int
	}{
		{DialectSQLServer, 10, 209},
		{DialectSQLServer, 1, 2099},
		{DialectSQLServer, 3000, 1},
		{DialectPostgres, 10, 6553},
		{DialectSQLite, 2, 16383},
		{DialectSQLite, 0, 32766},
	}
	for _, tt := range tests {
		s := &SQLStore{Dialect: tt.dialect}
		got := s.rowsPerStatement(tt.cols)
		assert.Equal(t, tt.want, got, "%s with %d columns", tt.dialect, tt.cols)
		if tt.cols > 0 && got > 1 {
			assert.LessOrEqual(t, got*tt.cols, s.maxParams())
		}
	}
}

func TestMongoBulkUpsertIsUnordered(t *testing.T) {
	opts := bulkUpsertOptions()
	require.NotNil(t, opts.Ordered)
	assert.False(t, *opts.Ordered)
}
