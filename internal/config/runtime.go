package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RuntimeConfig is an immutable mapping from option name to value. It is
// produced once at process start; every accessor returns copies.
type RuntimeConfig struct {
	m map[string]any
}

// NewRuntimeConfig copies src into a new RuntimeConfig.
func NewRuntimeConfig(src map[string]any) RuntimeConfig {
	return RuntimeConfig{m: cloneMap(src)}
}

// Lookup returns the value for key and whether it was present. Present keys
// may hold nil (an explicit "unset" such as reasoning_parser: null).
func (rc RuntimeConfig) Lookup(key string) (any, bool) {
	v, ok := rc.m[key]
	if ok {
		v = cloneValue(v)
	}
	return v, ok
}

// Len reports the number of options.
func (rc RuntimeConfig) Len() int { return len(rc.m) }

// Keys returns the option names in sorted order.
func (rc RuntimeConfig) Keys() []string {
	keys := make([]string, 0, len(rc.m))
	for k := range rc.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of rc with key set to value. rc itself is unchanged.
func (rc RuntimeConfig) With(key string, value any) RuntimeConfig {
	m := cloneMap(rc.m)
	m[key] = value
	return RuntimeConfig{m: m}
}

// Map returns a copy of the options.
func (rc RuntimeConfig) Map() map[string]any { return cloneMap(rc.m) }

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Value coercion shared by RuntimeConfig consumers and Descriptor. Config
// files decode numbers as int (yaml), int64 (toml) or float64 (json).

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(t), true
	}
	return "", false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, false
		}
		return b, true
	case int:
		return t != 0, true
	case int64:
		return t != 0, true
	case float64:
		return t != 0, true
	}
	return false, false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float32:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func asDuration(v any) (time.Duration, bool) {
	switch t := v.(type) {
	case time.Duration:
		return t, true
	case Duration:
		return t.D(), true
	case string:
		var d Duration
		if err := d.UnmarshalText([]byte(t)); err != nil {
			return 0, false
		}
		return d.D(), true
	}
	if n, ok := asInt(v); ok {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func asStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := asString(e)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		return strings.Fields(t), true
	}
	return nil, false
}
