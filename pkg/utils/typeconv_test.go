package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name string
		val  interface{}
		cfg  models.FieldConfig
		want interface{}
	}{
		{"nil", nil, models.FieldConfig{Type: "int"}, nil},
		{"int from string", "42", models.FieldConfig{Type: "int"}, int64(42)},
		{"int from json number", json.Number("7"), models.FieldConfig{Type: "int"}, int64(7)},
		{"float", "1.5", models.FieldConfig{Type: "float"}, 1.5},
		{"bool from int", int64(1), models.FieldConfig{Type: "bool"}, true},
		{"string from int", int64(5), models.FieldConfig{Type: "string"}, "5"},
		{"enum", "OPEN", models.FieldConfig{Type: "enum"}, "OPEN"},
		{"passthrough", []int{1}, models.FieldConfig{Type: "json"}, []int{1}},
		{"datetime", "2024-05-06", models.FieldConfig{Type: "datetime"}, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{"datetime custom format", "06/05/2024", models.FieldConfig{Type: "datetime", Format: "02/01/2006"}, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertValue(tt.val, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertValue_Errors(t *testing.T) {
	_, err := ConvertValue("abc", models.FieldConfig{Type: "int"})
	assert.Error(t, err)
	_, err = ConvertValue("not a date", models.FieldConfig{Type: "datetime"})
	assert.Error(t, err)
	_, err = ConvertValue("perhaps", models.FieldConfig{Type: "bool"})
	assert.Error(t, err)
	_, err = ConvertValue(struct{}{}, models.FieldConfig{Type: "float"})
	assert.Error(t, err)
}

func TestTimeOf(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, want, TimeOf("2024-01-02T03:04:05Z"))
	assert.Equal(t, want, TimeOf(primitive.NewDateTimeFromTime(want)).UTC())
	assert.True(t, TimeOf(nil).IsZero())
	assert.True(t, TimeOf("garbage").IsZero())
}

func TestToString(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "abc", ToString([]byte("abc")))
	assert.Equal(t, "12", ToString(int64(12)))
	assert.Equal(t, oid.Hex(), ToString(oid))
	assert.Equal(t, "2024-01-02T03:04:05Z", ToString(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, int64(5), NormalizeKey(json.Number("5")))
	assert.Equal(t, "5.5", NormalizeKey(json.Number("5.5")))
	assert.Equal(t, int64(300), NormalizeKey(float64(300)))
	assert.Equal(t, 2.5, NormalizeKey(2.5))
	assert.Equal(t, int64(3), NormalizeKey(3))
	assert.Equal(t, int64(3), NormalizeKey(int32(3)))
	assert.Equal(t, "k", NormalizeKey([]byte("k")))
	assert.Equal(t, "k", NormalizeKey("k"))
	assert.Nil(t, NormalizeKey(nil))
}

func TestEstimateSize(t *testing.T) {
	assert.Zero(t, EstimateSize(nil))
	assert.Equal(t, int64(len("subject")+len("hello")), EstimateSize(map[string]interface{}{"subject": "hello"}))
	assert.Equal(t, int64(len("n")+8), EstimateSize(map[string]interface{}{"n": int64(1)}))
	assert.Equal(t, int64(len("x")), EstimateSize(map[string]interface{}{"x": nil}))
}
