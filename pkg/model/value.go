package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Value is the value of a fluent application in a state.
type Value struct {
	kind   TypeKind
	b      bool
	num    float64
	object *Object
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{kind: BoolKind, b: b} }

// IntValue returns an integer value.
func IntValue(n int64) Value { return Value{kind: IntKind, num: float64(n)} }

// RealValue returns a real value.
func RealValue(n float64) Value { return Value{kind: RealKind, num: n} }

// ObjectValue returns an object value.
func ObjectValue(o *Object) Value { return Value{kind: UserKind, object: o} }

// ValueOf converts a constant expression to a value.
func ValueOf(e *Expression) (Value, error) {
	switch e.op {
	case OpBool:
		return BoolValue(e.b), nil
	case OpInt:
		return Value{kind: IntKind, num: e.num}, nil
	case OpReal:
		return RealValue(e.num), nil
	case OpObject:
		return ObjectValue(e.object), nil
	}
	return Value{}, fmt.Errorf("expression %s is not a constant", e)
}

// Kind returns the value family.
func (v Value) Kind() TypeKind { return v.kind }

// Bool returns a boolean value.
func (v Value) Bool() bool { return v.b }

// Number returns a numeric value.
func (v Value) Number() float64 { return v.num }

// Object returns an object value.
func (v Value) Object() *Object { return v.object }

// IsNumeric reports whether the value is an integer or real.
func (v Value) IsNumeric() bool { return v.kind == IntKind || v.kind == RealKind }

// Equal compares two values. Integers and reals compare numerically.
func (v Value) Equal(o Value) bool {
	if v.IsNumeric() && o.IsNumeric() {
		return v.num == o.num
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case BoolKind:
		return v.b == o.b
	case UserKind:
		return v.object == o.object
	}
	return false
}

// Expression converts the value back to a constant expression.
func (v Value) Expression() *Expression {
	switch v.kind {
	case BoolKind:
		return Bool(v.b)
	case IntKind:
		return &Expression{op: OpInt, num: v.num}
	case RealKind:
		return Real(v.num)
	default:
		return v.object.Expr()
	}
}

// Type returns the smallest type holding the value.
func (v Value) Type() *Type {
	switch v.kind {
	case BoolKind:
		return BoolType()
	case IntKind:
		return IntType()
	case RealKind:
		return RealType()
	default:
		return v.object.typ
	}
}

func (v Value) String() string {
	switch v.kind {
	case BoolKind:
		if v.b {
			return "true"
		}
		return "false"
	case IntKind, RealKind:
		return formatNumber(v.num)
	case UserKind:
		if v.object == nil {
			return "<nil>"
		}
		return v.object.name
	}
	return "?"
}

// numericValue builds an integer value when both operands are integers.
func numericValue(n float64, integer bool) Value {
	if integer && n == math.Trunc(n) {
		return Value{kind: IntKind, num: n}
	}
	return RealValue(n)
}

// State assigns a value to every ground fluent application, keyed by GroundKey.
type State struct {
	values map[string]Value
}

// NewState returns an empty state.
func NewState() *State {
	return &State{values: make(map[string]Value)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value under key.
func (s *State) Set(key string, v Value) {
	s.values[key] = v
}

// Len returns the number of assignments.
func (s *State) Len() int { return len(s.values) }

// Keys returns the keys in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	out := &State{values: make(map[string]Value, len(s.values))}
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}

// Fingerprint returns a canonical encoding of the state for duplicate detection.
func (s *State) Fingerprint() string {
	var sb strings.Builder
	for _, k := range s.Keys() {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(s.values[k].String())
		sb.WriteByte(';')
	}
	return sb.String()
}
