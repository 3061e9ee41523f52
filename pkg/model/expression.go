package model

import (
	"strings"
)

// Op is the operator of an expression node.
type Op int

const (
	OpBool Op = iota
	OpInt
	OpReal
	OpObject
	OpParameter
	OpVariable
	OpFluent
	OpAnd
	OpOr
	OpNot
	OpImplies
	OpIff
	OpExists
	OpForall
	OpEquals
	OpLE
	OpLT
	OpPlus
	OpMinus
	OpTimes
	OpDiv
)

var opNames = map[Op]string{
	OpAnd:     "and",
	OpOr:      "or",
	OpNot:     "not",
	OpImplies: "implies",
	OpIff:     "iff",
	OpExists:  "exists",
	OpForall:  "forall",
	OpEquals:  "==",
	OpLE:      "<=",
	OpLT:      "<",
	OpPlus:    "+",
	OpMinus:   "-",
	OpTimes:   "*",
	OpDiv:     "/",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	switch o {
	case OpBool:
		return "bool"
	case OpInt:
		return "int"
	case OpReal:
		return "real"
	case OpObject:
		return "object"
	case OpParameter:
		return "parameter"
	case OpVariable:
		return "variable"
	case OpFluent:
		return "fluent"
	}
	return "unknown"
}

// IsBoolOp reports whether o is a boolean connective or quantifier.
func (o Op) IsBoolOp() bool {
	return o >= OpAnd && o <= OpForall
}

// IsComparison reports whether o compares two terms.
func (o Op) IsComparison() bool {
	return o == OpEquals || o == OpLE || o == OpLT
}

// IsArithmetic reports whether o is an arithmetic operator.
func (o Op) IsArithmetic() bool {
	return o >= OpPlus && o <= OpDiv
}

// Expression is an immutable expression tree node. Nodes are shared freely
// between actions, problems and compiler results.
type Expression struct {
	op     Op
	args   []*Expression
	b      bool
	num    float64
	object *Object
	param  *Parameter
	vr     *Variable
	fluent *Fluent
	vars   []*Variable
}

// Expr returns e itself.
func (e *Expression) Expr() *Expression { return e }

// Op returns the node operator.
func (e *Expression) Op() Op { return e.op }

// Args returns a copy of the children.
func (e *Expression) Args() []*Expression {
	return append([]*Expression(nil), e.args...)
}

// Arg returns the i-th child.
func (e *Expression) Arg(i int) *Expression { return e.args[i] }

// NumArgs returns the number of children.
func (e *Expression) NumArgs() int { return len(e.args) }

// BoolValue returns the value of a boolean constant.
func (e *Expression) BoolValue() bool { return e.b }

// NumberValue returns the value of a numeric constant.
func (e *Expression) NumberValue() float64 { return e.num }

// Object returns the object of an object constant.
func (e *Expression) Object() *Object { return e.object }

// Parameter returns the parameter of a parameter reference.
func (e *Expression) Parameter() *Parameter { return e.param }

// Variable returns the variable of a variable reference.
func (e *Expression) Variable() *Variable { return e.vr }

// Fluent returns the fluent of a fluent application.
func (e *Expression) Fluent() *Fluent { return e.fluent }

// Variables returns the variables bound by a quantifier.
func (e *Expression) Variables() []*Variable {
	return append([]*Variable(nil), e.vars...)
}

// IsConstant reports whether e is a boolean, numeric or object constant.
func (e *Expression) IsConstant() bool {
	return e.op == OpBool || e.op == OpInt || e.op == OpReal || e.op == OpObject
}

// IsTrue reports whether e is the constant true.
func (e *Expression) IsTrue() bool { return e.op == OpBool && e.b }

// IsFalse reports whether e is the constant false.
func (e *Expression) IsFalse() bool { return e.op == OpBool && !e.b }

// IsFluentApp reports whether e applies a fluent.
func (e *Expression) IsFluentApp() bool { return e.op == OpFluent }

// IsGround reports whether e references no parameter or free variable.
func (e *Expression) IsGround() bool {
	ground := true
	e.Walk(func(n *Expression) bool {
		if n.op == OpParameter || n.op == OpVariable {
			ground = false
		}
		return ground
	})
	return ground
}

// Type returns the static type of e.
func (e *Expression) Type() *Type {
	switch e.op {
	case OpBool:
		return BoolType()
	case OpInt:
		return IntType()
	case OpReal:
		return RealType()
	case OpObject:
		return e.object.typ
	case OpParameter:
		return e.param.typ
	case OpVariable:
		return e.vr.typ
	case OpFluent:
		return e.fluent.typ
	case OpPlus, OpMinus, OpTimes:
		for _, a := range e.args {
			if a.Type().IsReal() {
				return RealType()
			}
		}
		return IntType()
	case OpDiv:
		return RealType()
	default:
		return BoolType()
	}
}

// Walk visits e and its descendants in pre-order. Children are skipped when
// fn returns false.
func (e *Expression) Walk(fn func(*Expression) bool) {
	if !fn(e) {
		return
	}
	for _, a := range e.args {
		a.Walk(fn)
	}
}

// Transform rebuilds e bottom-up. When fn returns true its result replaces the
// node and the node's children are not visited. Unchanged subtrees are shared.
func (e *Expression) Transform(fn func(*Expression) (*Expression, bool)) *Expression {
	if r, ok := fn(e); ok {
		return r
	}
	if len(e.args) == 0 {
		return e
	}
	var changed bool
	args := make([]*Expression, len(e.args))
	for i, a := range e.args {
		args[i] = a.Transform(fn)
		if args[i] != a {
			changed = true
		}
	}
	if !changed {
		return e
	}
	cp := *e
	cp.args = args
	return &cp
}

// Substitute replaces parameter references with objects.
func (e *Expression) Substitute(binding map[*Parameter]*Object) *Expression {
	if len(binding) == 0 {
		return e
	}
	return e.Transform(func(n *Expression) (*Expression, bool) {
		if n.op == OpParameter {
			if o, ok := binding[n.param]; ok {
				return o.Expr(), true
			}
		}
		return nil, false
	})
}

// SubstituteVariables replaces variable references with objects.
func (e *Expression) SubstituteVariables(binding map[*Variable]*Object) *Expression {
	if len(binding) == 0 {
		return e
	}
	return e.Transform(func(n *Expression) (*Expression, bool) {
		if n.op == OpVariable {
			if o, ok := binding[n.vr]; ok {
				return o.Expr(), true
			}
		}
		return nil, false
	})
}

// FluentApps returns every fluent application in e, outermost first.
func (e *Expression) FluentApps() []*Expression {
	var out []*Expression
	e.Walk(func(n *Expression) bool {
		if n.op == OpFluent {
			out = append(out, n)
		}
		return true
	})
	return out
}

func (e *Expression) String() string {
	var sb strings.Builder
	e.write(&sb)
	return sb.String()
}

func (e *Expression) write(sb *strings.Builder) {
	switch e.op {
	case OpBool:
		if e.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case OpInt, OpReal:
		sb.WriteString(formatNumber(e.num))
	case OpObject:
		sb.WriteString(e.object.name)
	case OpParameter:
		sb.WriteString(e.param.name)
	case OpVariable:
		sb.WriteString(e.vr.name)
	case OpFluent:
		sb.WriteString(e.fluent.name)
		if len(e.args) > 0 {
			sb.WriteByte('(')
			for i, a := range e.args {
				if i > 0 {
					sb.WriteString(", ")
				}
				a.write(sb)
			}
			sb.WriteByte(')')
		}
	case OpNot:
		sb.WriteString("(not ")
		e.args[0].write(sb)
		sb.WriteByte(')')
	case OpExists, OpForall:
		sb.WriteByte('(')
		sb.WriteString(e.op.String())
		for _, v := range e.vars {
			sb.WriteByte(' ')
			sb.WriteString(v.typ.String())
			sb.WriteByte(' ')
			sb.WriteString(v.name)
		}
		sb.WriteString(" . ")
		e.args[0].write(sb)
		sb.WriteByte(')')
	default:
		sb.WriteByte('(')
		for i, a := range e.args {
			if i > 0 {
				sb.WriteByte(' ')
				sb.WriteString(e.op.String())
				sb.WriteByte(' ')
			}
			a.write(sb)
		}
		sb.WriteByte(')')
	}
}

// Bool returns a boolean constant.
func Bool(b bool) *Expression {
	return &Expression{op: OpBool, b: b}
}

// True returns the constant true.
func True() *Expression { return Bool(true) }

// False returns the constant false.
func False() *Expression { return Bool(false) }

// Int returns an integer constant.
func Int(n int64) *Expression {
	return &Expression{op: OpInt, num: float64(n)}
}

// Real returns a real constant.
func Real(n float64) *Expression {
	return &Expression{op: OpReal, num: n}
}

// And conjoins its arguments. With no argument it is true.
func And(args ...Term) *Expression {
	switch len(args) {
	case 0:
		return True()
	case 1:
		return args[0].Expr()
	}
	return &Expression{op: OpAnd, args: terms(args)}
}

// Or disjoins its arguments. With no argument it is false.
func Or(args ...Term) *Expression {
	switch len(args) {
	case 0:
		return False()
	case 1:
		return args[0].Expr()
	}
	return &Expression{op: OpOr, args: terms(args)}
}

// Not negates a boolean expression.
func Not(a Term) *Expression {
	return &Expression{op: OpNot, args: []*Expression{a.Expr()}}
}

// Implies builds a implies b.
func Implies(a, b Term) *Expression {
	return &Expression{op: OpImplies, args: []*Expression{a.Expr(), b.Expr()}}
}

// Iff builds a if and only if b.
func Iff(a, b Term) *Expression {
	return &Expression{op: OpIff, args: []*Expression{a.Expr(), b.Expr()}}
}

// Exists quantifies body existentially over vars.
func Exists(body Term, vars ...*Variable) *Expression {
	return &Expression{op: OpExists, args: []*Expression{body.Expr()}, vars: append([]*Variable(nil), vars...)}
}

// Forall quantifies body universally over vars.
func Forall(body Term, vars ...*Variable) *Expression {
	return &Expression{op: OpForall, args: []*Expression{body.Expr()}, vars: append([]*Variable(nil), vars...)}
}

// Equals compares two terms for equality.
func Equals(a, b Term) *Expression {
	return &Expression{op: OpEquals, args: []*Expression{a.Expr(), b.Expr()}}
}

// LE builds a <= b.
func LE(a, b Term) *Expression {
	return &Expression{op: OpLE, args: []*Expression{a.Expr(), b.Expr()}}
}

// LT builds a < b.
func LT(a, b Term) *Expression {
	return &Expression{op: OpLT, args: []*Expression{a.Expr(), b.Expr()}}
}

// GE builds a >= b, stored as b <= a.
func GE(a, b Term) *Expression {
	return LE(b, a)
}

// GT builds a > b, stored as b < a.
func GT(a, b Term) *Expression {
	return LT(b, a)
}

// Plus sums its arguments.
func Plus(args ...Term) *Expression {
	if len(args) == 1 {
		return args[0].Expr()
	}
	return &Expression{op: OpPlus, args: terms(args)}
}

// Minus builds a - b.
func Minus(a, b Term) *Expression {
	return &Expression{op: OpMinus, args: []*Expression{a.Expr(), b.Expr()}}
}

// Times multiplies its arguments.
func Times(args ...Term) *Expression {
	if len(args) == 1 {
		return args[0].Expr()
	}
	return &Expression{op: OpTimes, args: terms(args)}
}

// Div builds a / b.
func Div(a, b Term) *Expression {
	return &Expression{op: OpDiv, args: []*Expression{a.Expr(), b.Expr()}}
}
