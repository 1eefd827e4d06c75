package mapsafe

import "time"

// Get retrieves a typed value from a parameter map.
//
// Numbers decoded from JSON arrive as float64, so int and float64 targets
// accept either form. Durations accept a Go duration string or a number of
// seconds. A missing key, a nil map or an unconvertible value yields def.
func Get[T any](m map[string]any, key string, def T) T {
	val, ok := m[key]
	if !ok || val == nil {
		return def
	}

	var out any
	switch any(def).(type) {
	case int:
		switch x := val.(type) {
		case int:
			out = x
		case int64:
			out = int(x)
		case float64:
			out = int(x)
		}
	case float64:
		switch x := val.(type) {
		case float64:
			out = x
		case float32:
			out = float64(x)
		case int:
			out = float64(x)
		case int64:
			out = float64(x)
		}
	case time.Duration:
		switch x := val.(type) {
		case time.Duration:
			out = x
		case string:
			if d, err := time.ParseDuration(x); err == nil {
				out = d
			}
		case float64:
			out = time.Duration(x * float64(time.Second))
		case int:
			out = time.Duration(x) * time.Second
		}
	default:
		if v, ok := val.(T); ok {
			return v
		}
	}

	if v, ok := out.(T); ok {
		return v
	}
	return def
}

// Has reports whether key is present with a non-nil value.
func Has(m map[string]any, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}
