// Package value implements the tagged-value map used for a job's
// pipelineConfig: a free-form string-keyed mapping whose values can be a
// string, number, bool, null, list, or nested map. It round-trips through
// JSON for storage and export, and unknown keys survive that round trip
// untouched even though the argv mapping in package runner only recognizes
// a closed set of them.
package value

import (
	"bytes"
	"encoding/json"
)

// Value is a sum type over the JSON scalar/composite kinds a pipelineConfig
// entry can hold.
type Value struct {
	raw any
}

// Of wraps a plain Go value (string, int, int64, float64, bool, nil,
// []any, map[string]any, []Value, Map) as a Value.
func Of(v any) Value {
	switch t := v.(type) {
	case Value:
		return t
	case []Value:
		anys := make([]any, len(t))
		for i, e := range t {
			anys[i] = e.raw
		}
		return Value{raw: anys}
	case Map:
		return Value{raw: t.toAny()}
	default:
		return Value{raw: v}
	}
}

// Map is an ordered-by-nothing string-keyed map of Values, i.e. the shape of
// a whole pipelineConfig.
type Map map[string]Value

func (m Map) toAny() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.raw
	}
	return out
}

// IsNull reports whether the value is JSON null / Go nil.
func (v Value) IsNull() bool { return v.raw == nil }

// String returns the value as a string and whether it was actually a string.
func (v Value) String() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// Bool returns the value as a bool and whether it was actually a bool.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// Int returns the value as an int64, coercing from json.Number/float64/int
// representations, and whether the coercion succeeded.
func (v Value) Int() (int64, bool) {
	switch n := v.raw.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// Float returns the value as a float64 and whether the coercion succeeded.
func (v Value) Float() (float64, bool) {
	switch n := v.raw.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Raw returns the underlying Go value as decoded from JSON.
func (v Value) Raw() any { return v.raw }

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// UnmarshalJSON implements json.Unmarshaler, using json.Number for numbers
// so integral pipelineConfig values (e.g. chunk_size) survive export/import
// without drifting into float64.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	v.raw = normalize(raw)
	return nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

// MarshalJSON implements json.Marshaler for Map so it serializes as a plain
// JSON object rather than leaking the Value wrapper type.
func (m Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toAny())
}

// UnmarshalJSON implements json.Unmarshaler for Map.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(Map, len(raw))
	for k, v := range raw {
		out[k] = Value{raw: normalize(v)}
	}
	*m = out
	return nil
}

// Clone returns a shallow copy of the map (sufficient since Values are
// immutable wrappers around already-decoded data).
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
