package model

import (
	"fmt"
)

// scope tracks what an expression may reference.
type scope struct {
	params map[*Parameter]bool
	vars   map[*Variable]bool
}

func (s scope) withVars(vars []*Variable) scope {
	out := scope{params: s.params, vars: make(map[*Variable]bool, len(s.vars)+len(vars))}
	for v := range s.vars {
		out.vars[v] = true
	}
	for _, v := range vars {
		out.vars[v] = true
	}
	return out
}

// Validate checks the structural invariants of the problem: every fluent
// application is well typed, every referenced object, fluent and parameter
// is declared, and every ground fluent application has an initial value.
func (p *Problem) Validate() error {
	for _, t := range p.types {
		if t.parent != nil && !t.parent.IsUser() {
			return fmt.Errorf("type %q: parent must be a user type", t.name)
		}
	}

	for _, a := range p.actions {
		s := scope{params: make(map[*Parameter]bool, len(a.params))}
		for _, param := range a.params {
			s.params[param] = true
		}
		for _, c := range a.preconditions {
			if err := p.checkCondition(c, s); err != nil {
				return fmt.Errorf("action %q: precondition %s: %w", a.name, c, err)
			}
		}
		for _, e := range a.effects {
			if err := p.checkEffect(e, s); err != nil {
				return fmt.Errorf("action %q: effect %s: %w", a.name, e, err)
			}
		}
	}

	for _, g := range p.goals {
		if err := p.checkCondition(g, scope{}); err != nil {
			return fmt.Errorf("goal %s: %w", g, err)
		}
	}

	for _, a := range p.initial {
		if _, ok := p.fluentByName[a.Fluent.fluent.name]; !ok {
			return fmt.Errorf("initial value of %s: fluent not declared", a.Fluent)
		}
		for _, arg := range a.Fluent.args {
			if err := p.checkExpr(arg, scope{}); err != nil {
				return fmt.Errorf("initial value of %s: %w", a.Fluent, err)
			}
		}
		if a.Value.op == OpObject {
			if err := p.checkExpr(a.Value, scope{}); err != nil {
				return fmt.Errorf("initial value of %s: %w", a.Fluent, err)
			}
		}
	}

	if _, err := p.InitialValues(); err != nil {
		return err
	}
	return nil
}

func (p *Problem) checkCondition(e *Expression, s scope) error {
	if !e.Type().IsBool() {
		return fmt.Errorf("condition is not boolean")
	}
	return p.checkExpr(e, s)
}

func (p *Problem) checkEffect(e *Effect, s scope) error {
	if e.fluent.op != OpFluent {
		return fmt.Errorf("target is not a fluent application")
	}
	if err := p.checkExpr(e.fluent, s); err != nil {
		return err
	}
	if err := p.checkExpr(e.value, s); err != nil {
		return err
	}
	target := e.fluent.fluent.typ
	switch e.kind {
	case IncreaseEffect, DecreaseEffect:
		if !target.IsNumeric() || !e.value.Type().IsNumeric() {
			return fmt.Errorf("%s effect requires numeric fluent and value", e.kind)
		}
		if target.IsInt() && !fitsInt(e.value) {
			return fmt.Errorf("%s effect on int fluent %s has real value %s", e.kind, e.fluent.fluent.name, e.value)
		}
	default:
		if target.IsInt() {
			if !fitsInt(e.value) {
				return fmt.Errorf("value %s of type %s does not fit %s", e.value, e.value.Type(), target)
			}
		} else if !target.Accepts(e.value.Type()) {
			return fmt.Errorf("value of type %s does not fit %s", e.value.Type(), target)
		}
	}
	if e.condition != nil {
		return p.checkCondition(e.condition, s)
	}
	return nil
}

// fitsInt reports whether v always evaluates to an integer. Integral real
// literals are accepted as they are for initial values.
func fitsInt(v *Expression) bool {
	if v.op == OpReal {
		return v.num == float64(int64(v.num))
	}
	return v.Type().IsInt()
}

func (p *Problem) checkExpr(e *Expression, s scope) error {
	switch e.op {
	case OpBool, OpInt, OpReal:
		return nil
	case OpObject:
		if o, ok := p.objectByName[e.object.name]; !ok || o != e.object {
			return fmt.Errorf("object %q is not part of the problem", e.object.name)
		}
		return nil
	case OpParameter:
		if !s.params[e.param] {
			return fmt.Errorf("parameter %q is not in scope", e.param.name)
		}
		return nil
	case OpVariable:
		if !s.vars[e.vr] {
			return fmt.Errorf("variable %q is not bound", e.vr.name)
		}
		return nil
	case OpFluent:
		f := e.fluent
		if registered, ok := p.fluentByName[f.name]; !ok || registered != f {
			return fmt.Errorf("fluent %q is not part of the problem", f.name)
		}
		if len(e.args) != len(f.params) {
			return fmt.Errorf("fluent %q expects %d arguments, got %d", f.name, len(f.params), len(e.args))
		}
		for i, a := range e.args {
			if err := p.checkExpr(a, s); err != nil {
				return err
			}
			at := a.Type()
			if !at.IsSubtypeOf(f.params[i].typ) {
				return fmt.Errorf("fluent %q: argument %s has type %s, expected %s", f.name, a, at, f.params[i].typ)
			}
		}
		return nil
	case OpExists, OpForall:
		for _, v := range e.vars {
			if !v.typ.IsUser() {
				return fmt.Errorf("variable %q must have a user type", v.name)
			}
		}
		return p.checkCondition(e.args[0], s.withVars(e.vars))
	case OpAnd, OpOr, OpNot, OpImplies, OpIff:
		for _, a := range e.args {
			if err := p.checkCondition(a, s); err != nil {
				return err
			}
		}
		return nil
	case OpEquals:
		l, r := e.args[0].Type(), e.args[1].Type()
		compatible := (l.IsNumeric() && r.IsNumeric()) ||
			(l.IsBool() && r.IsBool()) ||
			(l.IsUser() && r.IsUser() && (l.IsSubtypeOf(r) || r.IsSubtypeOf(l) || sharesRoot(l, r)))
		if !compatible {
			return fmt.Errorf("cannot compare %s with %s", l, r)
		}
		return p.checkArgs(e, s)
	case OpLE, OpLT, OpPlus, OpMinus, OpTimes, OpDiv:
		for _, a := range e.args {
			if !a.Type().IsNumeric() {
				return fmt.Errorf("operand %s of %s is not numeric", a, e.op)
			}
		}
		return p.checkArgs(e, s)
	}
	return fmt.Errorf("unknown operator %d", e.op)
}

func (p *Problem) checkArgs(e *Expression, s scope) error {
	for _, a := range e.args {
		if err := p.checkExpr(a, s); err != nil {
			return err
		}
	}
	return nil
}

func sharesRoot(a, b *Type) bool {
	ra, rb := a.Ancestors(), b.Ancestors()
	return ra[len(ra)-1] == rb[len(rb)-1]
}
