package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConvertValue converts a source value to the type named by cfg.Type.
// Unknown types pass the value through unchanged.
func ConvertValue(val interface{}, cfg models.FieldConfig) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch cfg.Type {
	case "datetime":
		return ConvertDateTime(val, cfg.Format)
	case "int":
		return ConvertToInt64(val)
	case "float":
		return ConvertToFloat(val)
	case "bool":
		return ConvertToBool(val)
	case "string", "enum":
		return ToString(val), nil
	default:
		return val, nil
	}
}

// ConvertDateTime parses val into a time.Time. A non-empty format is tried
// before the built-in layouts.
func ConvertDateTime(val interface{}, format string) (interface{}, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		if format != "" {
			formats = append([]string{format}, formats...)
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v), format)
	default:
		return val, nil
	}
}

// TimeOf is ConvertDateTime for callers that want a zero time instead of an error.
func TimeOf(val interface{}) time.Time {
	if val == nil {
		return time.Time{}
	}
	v, err := ConvertDateTime(val, "")
	if err != nil {
		return time.Time{}
	}
	t, _ := v.(time.Time)
	return t
}

func ConvertToInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case primitive.DateTime:
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func ConvertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

func ConvertToBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("cannot convert %T to bool", val)
	}
}

// ToString renders scalar values as text. nil becomes "".
func ToString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// NormalizeKey turns decoded key values into a comparable form: json.Number
// and integral floats become int64, byte slices become strings.
func NormalizeKey(v interface{}) interface{} {
	switch k := v.(type) {
	case json.Number:
		if n, err := k.Int64(); err == nil {
			return n
		}
		return k.String()
	case float64:
		if k == math.Trunc(k) && math.Abs(k) < 1<<53 {
			return int64(k)
		}
		return k
	case int:
		return int64(k)
	case int32:
		return int64(k)
	case []byte:
		return string(k)
	default:
		return v
	}
}

// EstimateSize approximates the stored size of a row in bytes.
func EstimateSize(row map[string]interface{}) int64 {
	var n int64
	for k, v := range row {
		n += int64(len(k))
		switch t := v.(type) {
		case nil:
		case string:
			n += int64(len(t))
		case []byte:
			n += int64(len(t))
		case bool:
			n++
		case time.Time:
			n += 8
		case int, int32, int64, float32, float64, json.Number:
			n += 8
		default:
			n += int64(len(fmt.Sprintf("%v", t)))
		}
	}
	return n
}
