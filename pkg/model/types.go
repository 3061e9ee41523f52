package model

import (
	"fmt"
	"strconv"
)

// TypeKind distinguishes the families of value types.
type TypeKind int

const (
	// BoolKind is the boolean type.
	BoolKind TypeKind = iota
	// IntKind is the integer type, optionally bounded.
	IntKind
	// RealKind is the real type, optionally bounded.
	RealKind
	// UserKind is a user-defined sort of objects.
	UserKind
)

func (k TypeKind) String() string {
	switch k {
	case BoolKind:
		return "bool"
	case IntKind:
		return "int"
	case RealKind:
		return "real"
	case UserKind:
		return "user"
	default:
		return "unknown"
	}
}

// Type is the declared type of an object, parameter, variable or fluent value.
// Types are immutable. A user type's parent is fixed at construction, so the
// subtype relation cannot contain cycles.
type Type struct {
	kind   TypeKind
	name   string
	parent *Type
	lower  *float64
	upper  *float64
}

var boolType = &Type{kind: BoolKind}

// BoolType returns the boolean type.
func BoolType() *Type {
	return boolType
}

// IntType returns an unbounded integer type.
func IntType() *Type {
	return &Type{kind: IntKind}
}

// BoundedIntType returns an integer type restricted to [lower, upper].
func BoundedIntType(lower, upper int64) *Type {
	lo, hi := float64(lower), float64(upper)
	return &Type{kind: IntKind, lower: &lo, upper: &hi}
}

// RealType returns an unbounded real type.
func RealType() *Type {
	return &Type{kind: RealKind}
}

// BoundedRealType returns a real type restricted to [lower, upper].
func BoundedRealType(lower, upper float64) *Type {
	return &Type{kind: RealKind, lower: &lower, upper: &upper}
}

// UserType returns a new user type. parent may be nil for a root type.
func UserType(name string, parent *Type) *Type {
	return &Type{kind: UserKind, name: name, parent: parent}
}

// Kind returns the type family.
func (t *Type) Kind() TypeKind { return t.kind }

// Name returns the name of a user type, or the family name otherwise.
func (t *Type) Name() string {
	if t.kind == UserKind {
		return t.name
	}
	return t.kind.String()
}

// Parent returns the parent of a user type, nil for roots and builtin types.
func (t *Type) Parent() *Type { return t.parent }

// IsBool reports whether t is the boolean type.
func (t *Type) IsBool() bool { return t.kind == BoolKind }

// IsInt reports whether t is an integer type.
func (t *Type) IsInt() bool { return t.kind == IntKind }

// IsReal reports whether t is a real type.
func (t *Type) IsReal() bool { return t.kind == RealKind }

// IsNumeric reports whether t is an integer or real type.
func (t *Type) IsNumeric() bool { return t.kind == IntKind || t.kind == RealKind }

// IsUser reports whether t is a user type.
func (t *Type) IsUser() bool { return t.kind == UserKind }

// Bounds returns the numeric bounds, nil when unbounded on that side.
func (t *Type) Bounds() (lower, upper *float64) {
	return t.lower, t.upper
}

// IsBounded reports whether a numeric type has any bound.
func (t *Type) IsBounded() bool {
	return t.lower != nil || t.upper != nil
}

// InBounds reports whether n satisfies the numeric bounds of t.
func (t *Type) InBounds(n float64) bool {
	if t.lower != nil && n < *t.lower {
		return false
	}
	if t.upper != nil && n > *t.upper {
		return false
	}
	return true
}

// IsSubtypeOf reports whether t equals other or descends from it.
func (t *Type) IsSubtypeOf(other *Type) bool {
	if t.kind != UserKind || other.kind != UserKind {
		return false
	}
	for cur := t; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// Accepts reports whether a value of type value can be stored in t.
func (t *Type) Accepts(value *Type) bool {
	switch t.kind {
	case BoolKind:
		return value.kind == BoolKind
	case IntKind:
		return value.kind == IntKind
	case RealKind:
		return value.IsNumeric()
	case UserKind:
		return value.IsSubtypeOf(t)
	}
	return false
}

// Ancestors returns t followed by its parents up to the root.
func (t *Type) Ancestors() []*Type {
	var out []*Type
	for cur := t; cur != nil; cur = cur.parent {
		out = append(out, cur)
	}
	return out
}

func (t *Type) String() string {
	switch t.kind {
	case UserKind:
		return t.name
	case IntKind, RealKind:
		if !t.IsBounded() {
			return t.kind.String()
		}
		return fmt.Sprintf("%s[%s, %s]", t.kind, boundString(t.lower, "-inf"), boundString(t.upper, "inf"))
	default:
		return t.kind.String()
	}
}

func boundString(b *float64, unbounded string) string {
	if b == nil {
		return unbounded
	}
	return formatNumber(*b)
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
