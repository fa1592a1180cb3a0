package action

import (
	"fmt"
	"strconv"
)

// String reads a string parameter. Numbers are formatted.
func String(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case fmt.Stringer:
		return t.String(), true
	case int, int64, float64:
		return fmt.Sprint(t), true
	}
	return "", false
}

// Float reads a numeric parameter. YAML yields ints, JSON yields float64.
func Float(params map[string]any, key string) (float64, bool) {
	switch t := params[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// Bool reads a boolean parameter.
func Bool(params map[string]any, key string) (bool, bool) {
	switch t := params[key].(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	}
	return false, false
}
