// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package canon

import (
	"fmt"
	"time"
)

// Kind enumerates the value variants a row cell may hold.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Integer
	Float
	String
	Timestamp
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case String:
		return "string"
	case Timestamp:
		return "timestamp"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// Value is a tagged variant holding one row cell. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	a    []Value
	o    map[string]Value
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

func NullValue() Value            { return Value{} }
func BoolValue(b bool) Value      { return Value{kind: Bool, b: b} }
func IntValue(i int64) Value      { return Value{kind: Integer, i: i} }
func FloatValue(f float64) Value  { return Value{kind: Float, f: f} }
func StringValue(s string) Value  { return Value{kind: String, s: s} }
func TimeValue(t time.Time) Value { return Value{kind: Timestamp, t: t} }

func ArrayValue(a []Value) Value { return Value{kind: Array, a: a} }

func ObjectValue(o map[string]Value) Value { return Value{kind: Object, o: o} }

func (v Value) Bool() bool           { return v.b }
func (v Value) Int() int64           { return v.i }
func (v Value) Float() float64       { return v.f }
func (v Value) Str() string          { return v.s }
func (v Value) Time() time.Time      { return v.t }
func (v Value) Values() []Value      { return v.a }
func (v Value) Fields() map[string]Value { return v.o }

type ErrUnsupportedType struct {
	V any
}

func (err *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("canon: unsupported value type %T", err.V)
}

func IsErrUnsupportedType(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrUnsupportedType)
	return ok
}

// FromAny converts the dynamic values our parsers produce into tagged Values.
func FromAny(a any) (Value, error) {
	switch v := a.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return v, nil
	case bool:
		return BoolValue(v), nil
	case int:
		return IntValue(int64(v)), nil
	case int8:
		return IntValue(int64(v)), nil
	case int16:
		return IntValue(int64(v)), nil
	case int32:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case uint:
		return IntValue(int64(v)), nil
	case uint8:
		return IntValue(int64(v)), nil
	case uint16:
		return IntValue(int64(v)), nil
	case uint32:
		return IntValue(int64(v)), nil
	case uint64:
		return IntValue(int64(v)), nil
	case float32:
		return FloatValue(float64(v)), nil
	case float64:
		return FloatValue(v), nil
	case string:
		return StringValue(v), nil
	case time.Time:
		return TimeValue(v), nil
	case []byte:
		return StringValue(string(v)), nil
	case []any:
		a := make([]Value, 0, len(v))
		for _, e := range v {
			ev, err := FromAny(e)
			if err != nil {
				return NullValue(), err
			}
			a = append(a, ev)
		}
		return ArrayValue(a), nil
	case map[string]any:
		o := make(map[string]Value, len(v))
		for k, e := range v {
			ev, err := FromAny(e)
			if err != nil {
				return NullValue(), err
			}
			o[k] = ev
		}
		return ObjectValue(o), nil
	}
	return NullValue(), &ErrUnsupportedType{V: a}
}

// FromRow converts a dynamic row into tagged form.
func FromRow(row map[string]any) (map[string]Value, error) {
	m := make(map[string]Value, len(row))
	for k, a := range row {
		v, err := FromAny(a)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// Widen returns the narrowest column kind able to hold both a and b. Mixed
// numeric cells widen to float; anything else mixed collapses to string.
func Widen(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == Null {
		return b
	}
	if b == Null {
		return a
	}
	if (a == Integer && b == Float) || (a == Float && b == Integer) {
		return Float
	}
	return String
}
