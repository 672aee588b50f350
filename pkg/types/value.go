// Package types defines the dynamic values that flow through template rendering:
// undefined, null, bool, number, string, list and string-keyed map.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueType is the kind tag of a Value.
type ValueType int

const (
	TypeUndefined ValueType = iota // missing variable, key or index
	TypeNull
	TypeBool
	TypeNumber // float64
	TypeString
	TypeList // []Value
	TypeMap  // ordered map of string -> Value
)

// String returns the name reported by type-inspecting helpers.
func (t ValueType) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBool:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeList:
		return "array"
	case TypeMap:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a template runtime value.
type Value struct {
	typ       ValueType
	boolVal   bool
	numVal    float64
	stringVal string
	listVal   []Value
	mapVal    *OrderedMap
}

// OrderedMap keeps keys in insertion order so objects stringify the way they
// were authored.
type OrderedMap struct {
	keys   []string
	values map[string]Value
}

// NewOrderedMap creates a new empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{
		keys:   make([]string, 0),
		values: make(map[string]Value),
	}
}

// NewOrderedMapFromPairs creates an ordered map from alternating key-value pairs.
func NewOrderedMapFromPairs(pairs ...any) *OrderedMap {
	m := NewOrderedMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		val, ok := pairs[i+1].(Value)
		if !ok {
			continue
		}
		m.Set(key, val)
	}
	return m
}

// Get retrieves a value by key.
func (m *OrderedMap) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set adds or updates a key, keeping the original position of existing keys.
func (m *OrderedMap) Set(key string, val Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = val
}

// Delete removes a key from the map.
func (m *OrderedMap) Delete(key string) {
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	result := make([]string, len(m.keys))
	copy(result, m.keys)
	return result
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// Clone creates a deep copy of the ordered map.
func (m *OrderedMap) Clone() *OrderedMap {
	c := NewOrderedMap()
	for _, k := range m.keys {
		c.Set(k, m.values[k].Clone())
	}
	return c
}

var (
	// Undefined is the value of anything that was never bound.
	Undefined = Value{typ: TypeUndefined}
	// Null is the explicit null literal.
	Null = Value{typ: TypeNull}
)

// NewBool creates a boolean value.
func NewBool(v bool) Value {
	return Value{typ: TypeBool, boolVal: v}
}

// NewNumber creates a number value.
func NewNumber(v float64) Value {
	return Value{typ: TypeNumber, numVal: v}
}

// NewInt creates a number value from an int.
func NewInt(v int) Value {
	return Value{typ: TypeNumber, numVal: float64(v)}
}

// NewString creates a string value.
func NewString(v string) Value {
	return Value{typ: TypeString, stringVal: v}
}

// NewList creates a list value from a slice of values.
func NewList(v []Value) Value {
	if v == nil {
		v = []Value{}
	}
	return Value{typ: TypeList, listVal: v}
}

// NewMap creates a map value from an OrderedMap.
func NewMap(v *OrderedMap) Value {
	if v == nil {
		v = NewOrderedMap()
	}
	return Value{typ: TypeMap, mapVal: v}
}

// NewMapFromGoMap creates a map value from a Go map (keys sorted alphabetically for determinism).
func NewMapFromGoMap(m map[string]Value) Value {
	om := NewOrderedMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		om.Set(k, m[k])
	}
	return Value{typ: TypeMap, mapVal: om}
}

// Type returns the value's type.
func (v Value) Type() ValueType {
	return v.typ
}

// IsNull reports whether the value is the null literal.
func (v Value) IsNull() bool {
	return v.typ == TypeNull
}

// IsUndefined reports whether the value is undefined.
func (v Value) IsUndefined() bool {
	return v.typ == TypeUndefined
}

// IsNil reports whether the value is null or undefined.
func (v Value) IsNil() bool {
	return v.typ == TypeNull || v.typ == TypeUndefined
}

// AsBool returns the boolean value. Panics if not a bool.
func (v Value) AsBool() bool {
	if v.typ != TypeBool {
		panic(fmt.Sprintf("AsBool called on %s value", v.typ))
	}
	return v.boolVal
}

// AsNumber returns the number value. Panics if not a number.
func (v Value) AsNumber() float64 {
	if v.typ != TypeNumber {
		panic(fmt.Sprintf("AsNumber called on %s value", v.typ))
	}
	return v.numVal
}

// AsString returns the string value. Panics if not a string.
func (v Value) AsString() string {
	if v.typ != TypeString {
		panic(fmt.Sprintf("AsString called on %s value", v.typ))
	}
	return v.stringVal
}

// AsList returns the list value. Panics if not a list.
func (v Value) AsList() []Value {
	if v.typ != TypeList {
		panic(fmt.Sprintf("AsList called on %s value", v.typ))
	}
	return v.listVal
}

// AsMap returns the map value. Panics if not a map.
func (v Value) AsMap() *OrderedMap {
	if v.typ != TypeMap {
		panic(fmt.Sprintf("AsMap called on %s value", v.typ))
	}
	return v.mapVal
}

// ToNumber coerces the value to a number the way arithmetic does.
// Strings that do not parse, undefined, lists and maps become NaN.
func (v Value) ToNumber() float64 {
	switch v.typ {
	case TypeNull:
		return 0
	case TypeBool:
		if v.boolVal {
			return 1
		}
		return 0
	case TypeNumber:
		return v.numVal
	case TypeString:
		s := strings.TrimSpace(v.stringVal)
		if s == "" {
			return 0
		}
		switch s {
		case "Infinity", "+Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// ToInt returns the number truncated to an int and whether it was a finite number.
func (v Value) ToInt() (int, bool) {
	if v.typ != TypeNumber || math.IsNaN(v.numVal) || math.IsInf(v.numVal, 0) {
		return 0, false
	}
	return int(v.numVal), true
}

// Truthy returns the truthiness used by if conditions and logical operators.
// false, 0, NaN, "", null, undefined and the empty list are falsy. Maps are
// always truthy.
func (v Value) Truthy() bool {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return false
	case TypeBool:
		return v.boolVal
	case TypeNumber:
		return v.numVal != 0 && !math.IsNaN(v.numVal)
	case TypeString:
		return v.stringVal != ""
	case TypeList:
		return len(v.listVal) > 0
	default:
		return true
	}
}

// Clone creates a deep copy of the value.
func (v Value) Clone() Value {
	switch v.typ {
	case TypeList:
		items := make([]Value, len(v.listVal))
		for i, item := range v.listVal {
			items[i] = item.Clone()
		}
		return NewList(items)
	case TypeMap:
		return NewMap(v.mapVal.Clone())
	default:
		return v
	}
}

// Equal tests strict deep equality. Values of different kinds are never equal.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBool:
		return v.boolVal == other.boolVal
	case TypeNumber:
		return v.numVal == other.numVal
	case TypeString:
		return v.stringVal == other.stringVal
	case TypeList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if v.mapVal.Len() != other.mapVal.Len() {
			return false
		}
		for _, k := range v.mapVal.Keys() {
			ov, ok := other.mapVal.Get(k)
			if !ok {
				return false
			}
			mv, _ := v.mapVal.Get(k)
			if !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// LooseEqual implements == between template values. null and undefined equal
// each other and nothing else; numbers compare with numeric strings and
// booleans after coercion; everything else falls back to Equal.
func (v Value) LooseEqual(other Value) bool {
	if v.IsNil() || other.IsNil() {
		return v.IsNil() && other.IsNil()
	}
	if v.typ == other.typ {
		return v.Equal(other)
	}
	if v.typ == TypeBool {
		return NewNumber(v.ToNumber()).LooseEqual(other)
	}
	if other.typ == TypeBool {
		return v.LooseEqual(NewNumber(other.ToNumber()))
	}
	if (v.typ == TypeNumber && other.typ == TypeString) || (v.typ == TypeString && other.typ == TypeNumber) {
		return v.ToNumber() == other.ToNumber()
	}
	return false
}

// String returns the text a value renders as inside {{ }}.
// null and undefined render empty; lists and maps render as compact JSON.
func (v Value) String() string {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return ""
	case TypeBool:
		if v.boolVal {
			return "true"
		}
		return "false"
	case TypeNumber:
		return FormatNumber(v.numVal)
	case TypeString:
		return v.stringVal
	case TypeList, TypeMap:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// GoString renders a debug form that keeps kinds distinguishable.
func (v Value) GoString() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeString:
		return strconv.Quote(v.stringVal)
	default:
		return v.String()
	}
}

// FormatNumber formats a float the way JavaScript's String(number) does:
// integers without a fraction, the shortest round-trip form otherwise, and
// exponent notation outside [1e-6, 1e21).
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits; JavaScript does not.
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MarshalJSON encodes the value as JSON. Undefined, NaN and infinities encode
// as null, matching JSON.stringify.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return []byte("null"), nil
	case TypeBool:
		if v.boolVal {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case TypeNumber:
		if math.IsNaN(v.numVal) || math.IsInf(v.numVal, 0) {
			return []byte("null"), nil
		}
		return []byte(FormatNumber(v.numVal)), nil
	case TypeString:
		return marshalString(v.stringVal)
	case TypeList:
		buf := []byte{'['}
		for i, item := range v.listVal {
			if i > 0 {
				buf = append(buf, ',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}
		buf = append(buf, ']')
		return buf, nil
	case TypeMap:
		buf := []byte{'{'}
		for i, k := range v.mapVal.Keys() {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, err := marshalString(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			val, _ := v.mapVal.Get(k)
			valBytes, err := val.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, valBytes...)
		}
		buf = append(buf, '}')
		return buf, nil
	}
	return nil, fmt.Errorf("cannot marshal unknown type %d", v.typ)
}

// marshalString encodes s without HTML escaping so prompt text with <, > and &
// stays readable.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes JSON into a Value, keeping object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseJSON decodes a single JSON document into a Value, keeping object key order.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeJSON(dec)
	if err != nil {
		return Undefined, err
	}
	if dec.More() {
		return Undefined, fmt.Errorf("unexpected data after JSON value")
	}
	return val, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Undefined, err
	}
	switch t := tok.(type) {
	case nil:
		return Null, nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Undefined, err
		}
		return NewNumber(f), nil
	case string:
		return NewString(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := make([]Value, 0)
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return Undefined, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Undefined, err
			}
			return NewList(items), nil
		case '{':
			m := NewOrderedMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Undefined, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Undefined, fmt.Errorf("invalid object key %v", keyTok)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return Undefined, err
				}
				m.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Undefined, err
			}
			return NewMap(m), nil
		}
	}
	return Undefined, fmt.Errorf("unexpected JSON token %v", tok)
}

// FromGo converts a plain Go value (as produced by encoding/json or yaml.v3)
// into a Value. Go maps have no order, so their keys are sorted.
func FromGo(v any) Value {
	if v == nil {
		return Null
	}
	switch val := v.(type) {
	case Value:
		return val
	case bool:
		return NewBool(val)
	case int:
		return NewNumber(float64(val))
	case int32:
		return NewNumber(float64(val))
	case int64:
		return NewNumber(float64(val))
	case uint:
		return NewNumber(float64(val))
	case uint64:
		return NewNumber(float64(val))
	case float32:
		return NewNumber(float64(val))
	case float64:
		return NewNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return NewString(val.String())
		}
		return NewNumber(f)
	case string:
		return NewString(val)
	case []string:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = NewString(item)
		}
		return NewList(items)
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromGo(item)
		}
		return NewList(items)
	case map[string]any:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			m[k] = FromGo(item)
		}
		return NewMapFromGoMap(m)
	case map[string]string:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			m[k] = NewString(item)
		}
		return NewMapFromGoMap(m)
	case map[any]any:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = FromGo(item)
		}
		return NewMapFromGoMap(m)
	default:
		return NewString(fmt.Sprintf("%v", val))
	}
}

// ToGoValue converts a Value to a plain Go value suitable for JSON marshaling.
func (v Value) ToGoValue() any {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return nil
	case TypeBool:
		return v.boolVal
	case TypeNumber:
		return v.numVal
	case TypeString:
		return v.stringVal
	case TypeList:
		result := make([]any, len(v.listVal))
		for i, item := range v.listVal {
			result[i] = item.ToGoValue()
		}
		return result
	case TypeMap:
		result := make(map[string]any, v.mapVal.Len())
		for _, k := range v.mapVal.Keys() {
			val, _ := v.mapVal.Get(k)
			result[k] = val.ToGoValue()
		}
		return result
	}
	return nil
}
