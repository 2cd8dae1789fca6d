package etl

import (
	"errors"
	"testing"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingTransformer_Transform(t *testing.T) {
	schema := contactsSchema()
	schema.Fields["created"] = models.FieldConfig{Source: "created_at", Dest: "created", Type: "datetime"}
	schema.Fields["score"] = models.FieldConfig{Source: "score", Dest: "score", Type: "int", Default: "0"}
	tr := NewMappingTransformer(schema)

	out, err := tr.Transform(SourceRecord{Key: int64(7), Row: store.Row{
		"id":         int64(7),
		"email":      "  seven@example.com ",
		"name":       "Seven",
		"created_at": "2024-02-03 04:05:06",
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec := out[0]
	assert.Equal(t, "dest_rows", rec.Table)
	assert.Equal(t, "email", rec.KeyColumn)
	assert.Equal(t, "seven@example.com", rec.Key)
	assert.Equal(t, OpUpsert, rec.Op)
	assert.Equal(t, int64(7), rec.SourceKey)
	assert.Equal(t, "Seven", rec.Fields["name"])
	assert.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), rec.Fields["created"])
	assert.Equal(t, int64(0), rec.Fields["score"])
}

func TestMappingTransformer_Skips(t *testing.T) {
	schema := contactsSchema()
	schema.Fields["owner"] = models.FieldConfig{Source: "owner", Dest: "owner", Required: true}
	tr := NewMappingTransformer(schema)

	tests := []struct {
		name   string
		row    store.Row
		reason string
	}{
		{"missing key", store.Row{"owner": "x"}, "missing natural key email"},
		{"blank key", store.Row{"email": "  ", "owner": "x"}, "missing natural key email"},
		{"missing required", store.Row{"email": "a@example.com"}, "missing required field owner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Transform(SourceRecord{Key: int64(1), Row: tt.row})
			var se *SkipError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.reason, se.Reason)
		})
	}
}

func TestMappingTransformer_IntKey(t *testing.T) {
	schema := contactsSchema()
	schema.IDStrategy = models.IDStrategy{SourceField: "id", DestField: "legacy_id", Type: "int"}
	tr := NewMappingTransformer(schema)

	out, err := tr.Transform(SourceRecord{Key: int64(1), Row: store.Row{"id": "42", "name": "n"}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), out[0].Key)

	_, err = tr.Transform(SourceRecord{Key: int64(1), Row: store.Row{"id": "forty-two"}})
	assert.Error(t, err)
}

func TestSkipReason(t *testing.T) {
	assert.Equal(t, "no output", skipReason(Skip("no output")))
	assert.Equal(t, "boom", skipReason(errors.New("boom")))
	assert.Equal(t, "skip: bad row 3", Skip("bad row %d", 3).Error())
}
