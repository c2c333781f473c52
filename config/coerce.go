package config

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/rohankumardubey/brooklyn-server/errors"
)

// ToStringMap attempts best-effort coercion of v to a string-keyed map.
// It accepts map[string]any directly, widens other map kinds whose keys are
// (or stringify to) strings, and reports false for anything else.
func ToStringMap(v any) (map[string]any, bool) {
	if v == nil {
		return nil, false
	}

	switch m := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[any]any:
		// yaml.v3 produces this shape for untyped nested maps
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	}

	return nil, false
}

// Coerce converts v to the named primitive type. An empty or "any" type name
// passes the value through unchanged. Coercion failures return ErrCoercion;
// callers on best-effort paths log and fall back rather than propagating.
func Coerce(v any, typeName string) (any, error) {
	if v == nil || typeName == "" || typeName == "any" {
		return v, nil
	}

	switch typeName {
	case "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil

	case "int":
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if float64(int(n)) == n {
				return int(n), nil
			}
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				return parsed, nil
			}
		}

	case "float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return parsed, nil
			}
		}

	case "bool":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed, nil
			}
		}

	case "duration":
		switch d := v.(type) {
		case time.Duration:
			return d, nil
		case string:
			if parsed, err := time.ParseDuration(d); err == nil {
				return parsed, nil
			}
		case int:
			return time.Duration(d) * time.Millisecond, nil
		case int64:
			return time.Duration(d) * time.Millisecond, nil
		case float64:
			return time.Duration(d * float64(time.Millisecond)), nil
		}

	case "map":
		if m, ok := ToStringMap(v); ok {
			return m, nil
		}

	case "list":
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := make([]any, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				out[i] = rv.Index(i).Interface()
			}
			return out, nil
		}

	default:
		// Unknown declared types pass through; the caller asked for something
		// this layer does not know how to produce.
		return v, nil
	}

	return nil, fmt.Errorf("%w: cannot coerce %T to %s", errors.ErrCoercion, v, typeName)
}
