package jsonutil

import (
	"encoding/json"
	"math"
	"strconv"
)

// FlexibleInt64 converts a decoded JSON value to an int64, handling the
// different shapes ids take after a round trip through JSON-RPC, jsonb or
// YAML: Go integers, integral float64s, json.Number and json.RawMessage.
// Returns false for NaN, infinities, fractional numbers, booleans, strings
// and anything else that is not a whole number.
func FlexibleInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case json.RawMessage:
		if len(n) == 0 || string(n) == "null" {
			return 0, false
		}
		var num json.Number
		if err := json.Unmarshal(n, &num); err != nil {
			return 0, false
		}
		return FlexibleInt64(num)
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// FlexibleFloat64 converts a decoded JSON number to float64.
// Returns false for non-numeric values and NaN.
func FlexibleFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		if i, ok := FlexibleInt64(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

// FlexibleString returns v as a string when it is a string or a number.
// Returns empty string for nil and for false (the source system's "no value").
func FlexibleString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if !s {
			return ""
		}
		return "true"
	}
	if i, ok := FlexibleInt64(v); ok {
		return strconv.FormatInt(i, 10)
	}
	if f, ok := FlexibleFloat64(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return ""
}
