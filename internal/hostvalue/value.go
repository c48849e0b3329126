// Package hostvalue implements the HostValue/MapValue tagged-union data
// model (spec.md §3) and the Handle/HandleMap arena used to reference
// host-owned resources (HTTP requests, streams) from within a perform.
package hostvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the variant a Value currently holds.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindStream
)

// Value is a HostValue: a tagged union of None | Bool | Number | String |
// Array<Value> | Object<string, Value> | Stream(Handle). MapValue is the
// same representation with the invariant that KindStream never appears —
// the map only ever sees streams wrapped behind HTTP response objects — so
// this package does not define a separate Go type for MapValue, and no
// code in this module rejects a Stream-kind value on its way to the map.
type Value struct {
	kind   Kind
	b      bool
	num    float64
	str    string
	arr    []Value
	obj    map[string]Value
	stream Handle
}

// None is the zero Value.
var None = Value{kind: KindNone}

func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Array(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}
func Stream(h Handle) Value { return Value{kind: KindStream, stream: h} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Number() (float64, bool)  { return v.num, v.kind == KindNumber }
func (v Value) String() (string, bool)   { return v.str, v.kind == KindString }
func (v Value) Array() ([]Value, bool)   { return v.arr, v.kind == KindArray }
func (v Value) Object() (map[string]Value, bool) { return v.obj, v.kind == KindObject }
func (v Value) Stream() (Handle, bool)   { return v.stream, v.kind == KindStream }

// AsStringOrEmpty returns the string value, or "" if v is not a string.
// Convenience for templating call sites that already checked the shape.
func (v Value) AsStringOrEmpty() string {
	if v.kind == KindString {
		return v.str
	}
	return ""
}

const streamTagKey = "$HostValue::Stream"

// MarshalJSON implements the custom tagged encoding from spec.md §3: every
// variant maps to ordinary JSON except Stream, which becomes a single-key
// object `{"$HostValue::Stream": <handle>}`.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNone:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		return json.Marshal(v.arr)
	case KindObject:
		return marshalObjectDeterministic(v.obj)
	case KindStream:
		return json.Marshal(map[string]Handle{streamTagKey: v.stream})
	default:
		return nil, fmt.Errorf("hostvalue: unknown kind %d", v.kind)
	}
}

// marshalObjectDeterministic sorts keys before encoding so serialized
// output (and therefore content hashes computed over it, and golden test
// fixtures) is stable across runs. The data model's invariant says
// insertion order is irrelevant, which frees us to do this.
func marshalObjectDeterministic(obj map[string]Value) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		valJSON, err := json.Marshal(obj[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON implements the inverse of MarshalJSON, detecting the stream
// tag key before falling back to general object parsing.
func (v *Value) UnmarshalJSON(data []byte) error {
	var probe any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&probe); err != nil {
		return fmt.Errorf("hostvalue: decode: %w", err)
	}
	val, err := fromAny(probe)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func fromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return None, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("hostvalue: invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, el := range t {
			v, err := fromAny(el)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items), nil
	case map[string]any:
		if len(t) == 1 {
			if raw, ok := t[streamTagKey]; ok {
				switch h := raw.(type) {
				case json.Number:
					n, err := h.Int64()
					if err != nil {
						return Value{}, fmt.Errorf("hostvalue: invalid stream handle: %w", err)
					}
					return Stream(Handle(n)), nil
				}
			}
		}
		fields := make(map[string]Value, len(t))
		for k, el := range t {
			v, err := fromAny(el)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Object(fields), nil
	default:
		return Value{}, fmt.Errorf("hostvalue: unsupported JSON value %T", x)
	}
}

// Equal reports whether v and other represent the same value. Used by
// round-trip tests (spec.md §8, property 1).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindStream:
		return v.stream == other.stream
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, val := range v.obj {
			ov, ok := other.obj[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}
