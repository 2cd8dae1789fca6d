package etl

import (
	"fmt"
	"regexp"
	"strings"
)

var columnName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Validator checks the shape of destination records before they are written.
// In dry run it is the only thing the writer does.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRecord checks that a record names a table, a key and a known op,
// and that its fields agree with its key.
func (v *Validator) ValidateRecord(rec DestinationRecord) error {
	if !columnName.MatchString(rec.Table) {
		return fmt.Errorf("invalid table name %q", rec.Table)
	}
	if !columnName.MatchString(rec.KeyColumn) {
		return fmt.Errorf("invalid key column %q", rec.KeyColumn)
	}
	if rec.Key == nil {
		return fmt.Errorf("missing required key field: %s", rec.KeyColumn)
	}
	if s, ok := rec.Key.(string); ok && strings.TrimSpace(s) == "" {
		return fmt.Errorf("empty key field: %s", rec.KeyColumn)
	}

	switch rec.Op {
	case OpDelete:
		return nil
	case OpUpsert:
	default:
		return fmt.Errorf("unknown op %q", rec.Op)
	}

	for col := range rec.Fields {
		if !columnName.MatchString(col) {
			return fmt.Errorf("invalid column name %q", col)
		}
	}
	if k, ok := rec.Fields[rec.KeyColumn]; ok && k != nil && fmt.Sprint(k) != fmt.Sprint(rec.Key) {
		return fmt.Errorf("field %s=%v disagrees with record key %v", rec.KeyColumn, k, rec.Key)
	}
	return nil
}
