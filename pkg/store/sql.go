package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Dialect selects the SQL flavour a SQLStore speaks.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"
	DialectSQLite    Dialect = "sqlite"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

var validIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLStore implements Store over database/sql.
type SQLStore struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{DB: db, Dialect: dialect}
}

func (s *SQLStore) placeholder(n int) string {
	switch s.Dialect {
	case DialectPostgres:
		return fmt.Sprintf("$%d", n)
	case DialectSQLServer:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

func (s *SQLStore) quote(ident string) (string, error) {
	if !validIdent.MatchString(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if s.Dialect == DialectSQLServer {
			parts[i] = "[" + p + "]"
		} else {
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, "."), nil
}

func (s *SQLStore) quoteAll(idents []string) ([]string, error) {
	out := make([]string, len(idents))
	for i, id := range idents {
		q, err := s.quote(id)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// whereClause renders the keyset and filter predicates. args is extended in place.
func (s *SQLStore) whereClause(orderKey string, after interface{}, f *Filter, args *[]interface{}) (string, error) {
	var preds []string
	if after != nil && orderKey != "" {
		k, err := s.quote(orderKey)
		if err != nil {
			return "", err
		}
		*args = append(*args, after)
		preds = append(preds, fmt.Sprintf("%s > %s", k, s.placeholder(len(*args))))
	}
	if !f.IsZero() {
		c, err := s.quote(f.Column)
		if err != nil {
			return "", err
		}
		if !f.Since.IsZero() {
			*args = append(*args, f.Since)
			preds = append(preds, fmt.Sprintf("%s >= %s", c, s.placeholder(len(*args))))
		}
		if !f.Before.IsZero() {
			*args = append(*args, f.Before)
			preds = append(preds, fmt.Sprintf("%s < %s", c, s.placeholder(len(*args))))
		}
	}
	if len(preds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(preds, " AND "), nil
}

func (s *SQLStore) SelectPage(ctx context.Context, q PageQuery) ([]Row, error) {
	table, err := s.quote(q.Table)
	if err != nil {
		return nil, err
	}
	key, err := s.quote(q.OrderKey)
	if err != nil {
		return nil, err
	}
	cols := "*"
	if len(q.Columns) > 0 {
		quoted, err := s.quoteAll(q.Columns)
		if err != nil {
			return nil, err
		}
		cols = strings.Join(quoted, ", ")
	}

	var args []interface{}
	where, err := s.whereClause(q.OrderKey, q.After, q.Filter, &args)
	if err != nil {
		return nil, err
	}

	var query string
	if s.Dialect == DialectSQLServer {
		query = fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY",
			cols, table, where, key, q.Limit)
	} else {
		query = fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %d", cols, table, where, key, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select page from %s: %w", q.Table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var results []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, name := range cols {
			if b, ok := values[i].([]byte); ok {
				r[name] = string(b)
			} else {
				r[name] = values[i]
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// columnsOf returns the sorted union of column names across rows.
func columnsOf(rows []Row) []string {
	set := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func (s *SQLStore) Upsert(ctx context.Context, table, keyColumn string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := columnsOf(rows)
	per := s.rowsPerStatement(len(cols))
	if len(rows) <= per {
		query, args, err := s.upsertSQL(table, keyColumn, cols, rows)
		if err != nil {
			return err
		}
		if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %d rows into %s: %w", len(rows), table, err)
		}
		return nil
	}

	// Too many parameters for one statement: split, but keep the batch atomic.
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert into %s: %w", table, err)
	}
	defer tx.Rollback()
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		query, args, err := s.upsertSQL(table, keyColumn, cols, rows[start:end])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %d rows into %s: %w", len(rows), table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert into %s: %w", table, err)
	}
	return nil
}

// maxParams is the bind parameter limit of a single statement.
func (s *SQLStore) maxParams() int {
	switch s.Dialect {
	case DialectSQLServer:
		return 2100 - 1
	case DialectPostgres:
		return 65535
	default:
		return 32766
	}
}

func (s *SQLStore) rowsPerStatement(cols int) int {
	if cols < 1 {
		cols = 1
	}
	n := s.maxParams() / cols
	if n < 1 {
		n = 1
	}
	return n
}

func (s *SQLStore) upsertSQL(table, keyColumn string, cols []string, rows []Row) (string, []interface{}, error) {
	qTable, err := s.quote(table)
	if err != nil {
		return "", nil, err
	}
	qKey, err := s.quote(keyColumn)
	if err != nil {
		return "", nil, err
	}
	qCols, err := s.quoteAll(cols)
	if err != nil {
		return "", nil, err
	}

	var args []interface{}
	tuples := make([]string, 0, len(rows))
	for _, r := range rows {
		ph := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, r[c])
			ph[i] = s.placeholder(len(args))
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}

	var sets []string
	for i, c := range cols {
		if c == keyColumn {
			continue
		}
		if s.Dialect == DialectSQLServer {
			sets = append(sets, fmt.Sprintf("target.%s = source.%s", qCols[i], qCols[i]))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", qCols[i], qCols[i]))
		}
	}

	colList := strings.Join(qCols, ", ")
	if s.Dialect == DialectSQLServer {
		srcCols := make([]string, len(qCols))
		for i, c := range qCols {
			srcCols[i] = "source." + c
		}
		query := fmt.Sprintf("MERGE INTO %s AS target USING (VALUES %s) AS source (%s) ON target.%s = source.%s",
			qTable, strings.Join(tuples, ", "), colList, qKey, qKey)
		if len(sets) > 0 {
			query += " WHEN MATCHED THEN UPDATE SET " + strings.Join(sets, ", ")
		}
		query += fmt.Sprintf(" WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);", colList, strings.Join(srcCols, ", "))
		return query, args, nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s)", qTable, colList, strings.Join(tuples, ", "), qKey)
	if len(sets) > 0 {
		query += " DO UPDATE SET " + strings.Join(sets, ", ")
	} else {
		query += " DO NOTHING"
	}
	return query, args, nil
}

func (s *SQLStore) Delete(ctx context.Context, table, keyColumn string, keys []interface{}) error {
	if len(keys) == 0 {
		return nil
	}
	qTable, err := s.quote(table)
	if err != nil {
		return err
	}
	qKey, err := s.quote(keyColumn)
	if err != nil {
		return err
	}
	ph := make([]string, len(keys))
	for i := range keys {
		ph[i] = s.placeholder(i + 1)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", qTable, qKey, strings.Join(ph, ", "))
	if _, err := s.DB.ExecContext(ctx, query, keys...); err != nil {
		return fmt.Errorf("delete %d rows from %s: %w", len(keys), table, err)
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context, table string, f *Filter) (int64, error) {
	qTable, err := s.quote(table)
	if err != nil {
		return 0, err
	}
	var args []interface{}
	where, err := s.whereClause("", nil, f, &args)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+qTable+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *SQLStore) TableExists(ctx context.Context, table string) (bool, error) {
	if !validIdent.MatchString(table) {
		return false, fmt.Errorf("invalid identifier %q", table)
	}
	name := table
	if i := strings.LastIndex(table, "."); i >= 0 {
		name = table[i+1:]
	}

	var query string
	switch s.Dialect {
	case DialectSQLite:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	case DialectSQLServer:
		query = "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1"
	default:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1"
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, query, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
