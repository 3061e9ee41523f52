package model

import "strings"

// Term is anything usable as an expression argument.
type Term interface {
	Expr() *Expression
}

// Object is an immutable named constant of a user type.
type Object struct {
	name string
	typ  *Type
}

// NewObject creates an object of the given user type.
func NewObject(name string, typ *Type) *Object {
	return &Object{name: name, typ: typ}
}

// Name returns the object name.
func (o *Object) Name() string { return o.name }

// Type returns the object type.
func (o *Object) Type() *Type { return o.typ }

// Expr returns the object as a constant expression.
func (o *Object) Expr() *Expression {
	return &Expression{op: OpObject, object: o}
}

func (o *Object) String() string { return o.name }

// Parameter is a typed formal parameter of an action or fluent.
type Parameter struct {
	name string
	typ  *Type
}

// NewParameter creates a parameter.
func NewParameter(name string, typ *Type) *Parameter {
	return &Parameter{name: name, typ: typ}
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Type returns the parameter type.
func (p *Parameter) Type() *Type { return p.typ }

// Expr returns a reference to the parameter.
func (p *Parameter) Expr() *Expression {
	return &Expression{op: OpParameter, param: p}
}

func (p *Parameter) String() string { return p.name }

// Variable is a quantified variable.
type Variable struct {
	name string
	typ  *Type
}

// NewVariable creates a variable ranging over the objects of typ.
func NewVariable(name string, typ *Type) *Variable {
	return &Variable{name: name, typ: typ}
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Type returns the variable type.
func (v *Variable) Type() *Type { return v.typ }

// Expr returns a reference to the variable.
func (v *Variable) Expr() *Expression {
	return &Expression{op: OpVariable, vr: v}
}

func (v *Variable) String() string { return v.name }

// Fluent is a problem-independent state variable template.
type Fluent struct {
	name   string
	typ    *Type
	params []*Parameter
}

// NewFluent creates a fluent with value type typ and the given signature.
func NewFluent(name string, typ *Type, params ...*Parameter) *Fluent {
	return &Fluent{name: name, typ: typ, params: append([]*Parameter(nil), params...)}
}

// Name returns the fluent name.
func (f *Fluent) Name() string { return f.name }

// Type returns the value type.
func (f *Fluent) Type() *Type { return f.typ }

// Signature returns a copy of the parameters.
func (f *Fluent) Signature() []*Parameter {
	return append([]*Parameter(nil), f.params...)
}

// Arity returns the number of parameters.
func (f *Fluent) Arity() int { return len(f.params) }

// Of applies the fluent to arguments.
func (f *Fluent) Of(args ...Term) *Expression {
	return &Expression{op: OpFluent, fluent: f, args: terms(args)}
}

// Expr applies a zero-arity fluent.
func (f *Fluent) Expr() *Expression {
	return f.Of()
}

func (f *Fluent) String() string {
	if len(f.params) == 0 {
		return f.typ.String() + " " + f.name
	}
	parts := make([]string, len(f.params))
	for i, p := range f.params {
		parts[i] = p.typ.String() + " " + p.name
	}
	return f.typ.String() + " " + f.name + "[" + strings.Join(parts, ", ") + "]"
}

// GroundKey returns the state key of f applied to objs.
func GroundKey(f *Fluent, objs []*Object) string {
	if len(objs) == 0 {
		return f.name
	}
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.name
	}
	return f.name + "(" + strings.Join(names, ", ") + ")"
}

func terms(in []Term) []*Expression {
	out := make([]*Expression, len(in))
	for i, t := range in {
		out[i] = t.Expr()
	}
	return out
}
