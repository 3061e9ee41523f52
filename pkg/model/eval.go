package model

import (
	"fmt"
)

// Evaluator computes expression values against a state.
type Evaluator struct {
	problem *Problem
}

// NewEvaluator returns an evaluator using the objects of p for quantifiers.
func NewEvaluator(p *Problem) *Evaluator {
	return &Evaluator{problem: p}
}

type env struct {
	params map[*Parameter]*Object
	vars   map[*Variable]*Object
}

// Eval evaluates e in st with the given parameter binding.
func (ev *Evaluator) Eval(e *Expression, st *State, params map[*Parameter]*Object) (Value, error) {
	return ev.eval(e, st, env{params: params})
}

// EvalBool evaluates a boolean condition.
func (ev *Evaluator) EvalBool(e *Expression, st *State, params map[*Parameter]*Object) (bool, error) {
	v, err := ev.Eval(e, st, params)
	if err != nil {
		return false, err
	}
	if v.kind != BoolKind {
		return false, fmt.Errorf("expression %s is not boolean", e)
	}
	return v.b, nil
}

// GroundKey resolves the arguments of a fluent application and returns its state key.
func (ev *Evaluator) GroundKey(app *Expression, st *State, params map[*Parameter]*Object) (string, error) {
	return ev.groundKey(app, st, env{params: params})
}

func (ev *Evaluator) groundKey(app *Expression, st *State, en env) (string, error) {
	if app.op != OpFluent {
		return "", fmt.Errorf("expression %s is not a fluent application", app)
	}
	objs := make([]*Object, len(app.args))
	for i, a := range app.args {
		v, err := ev.eval(a, st, en)
		if err != nil {
			return "", err
		}
		if v.kind != UserKind || v.object == nil {
			return "", fmt.Errorf("argument %s of %s does not denote an object", a, app)
		}
		objs[i] = v.object
	}
	return GroundKey(app.fluent, objs), nil
}

func (ev *Evaluator) eval(e *Expression, st *State, en env) (Value, error) {
	switch e.op {
	case OpBool, OpInt, OpReal, OpObject:
		return ValueOf(e)
	case OpParameter:
		o, ok := en.params[e.param]
		if !ok {
			return Value{}, fmt.Errorf("parameter %q is not bound", e.param.name)
		}
		return ObjectValue(o), nil
	case OpVariable:
		o, ok := en.vars[e.vr]
		if !ok {
			return Value{}, fmt.Errorf("variable %q is not bound", e.vr.name)
		}
		return ObjectValue(o), nil
	case OpFluent:
		key, err := ev.groundKey(e, st, en)
		if err != nil {
			return Value{}, err
		}
		v, ok := st.Get(key)
		if !ok {
			return Value{}, fmt.Errorf("no value for %s in state", key)
		}
		return v, nil
	case OpAnd:
		for _, a := range e.args {
			b, err := ev.evalBool(a, st, en)
			if err != nil || !b {
				return BoolValue(false), err
			}
		}
		return BoolValue(true), nil
	case OpOr:
		for _, a := range e.args {
			b, err := ev.evalBool(a, st, en)
			if err != nil || b {
				return BoolValue(b), err
			}
		}
		return BoolValue(false), nil
	case OpNot:
		b, err := ev.evalBool(e.args[0], st, en)
		return BoolValue(!b), err
	case OpImplies:
		l, err := ev.evalBool(e.args[0], st, en)
		if err != nil {
			return Value{}, err
		}
		if !l {
			return BoolValue(true), nil
		}
		r, err := ev.evalBool(e.args[1], st, en)
		return BoolValue(r), err
	case OpIff:
		l, err := ev.evalBool(e.args[0], st, en)
		if err != nil {
			return Value{}, err
		}
		r, err := ev.evalBool(e.args[1], st, en)
		return BoolValue(l == r), err
	case OpExists, OpForall:
		return ev.evalQuantifier(e, st, en)
	case OpEquals:
		l, err := ev.eval(e.args[0], st, en)
		if err != nil {
			return Value{}, err
		}
		r, err := ev.eval(e.args[1], st, en)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(l.Equal(r)), nil
	case OpLE, OpLT:
		l, r, err := ev.evalPair(e, st, en)
		if err != nil {
			return Value{}, err
		}
		if e.op == OpLE {
			return BoolValue(l.num <= r.num), nil
		}
		return BoolValue(l.num < r.num), nil
	case OpPlus, OpTimes:
		acc := 0.0
		if e.op == OpTimes {
			acc = 1
		}
		integer := true
		for _, a := range e.args {
			v, err := ev.evalNumber(a, st, en)
			if err != nil {
				return Value{}, err
			}
			integer = integer && v.kind == IntKind
			if e.op == OpPlus {
				acc += v.num
			} else {
				acc *= v.num
			}
		}
		return numericValue(acc, integer), nil
	case OpMinus:
		l, r, err := ev.evalPair(e, st, en)
		if err != nil {
			return Value{}, err
		}
		return numericValue(l.num-r.num, l.kind == IntKind && r.kind == IntKind), nil
	case OpDiv:
		l, r, err := ev.evalPair(e, st, en)
		if err != nil {
			return Value{}, err
		}
		if r.num == 0 {
			return Value{}, fmt.Errorf("division by zero in %s", e)
		}
		return RealValue(l.num / r.num), nil
	}
	return Value{}, fmt.Errorf("cannot evaluate operator %s", e.op)
}

func (ev *Evaluator) evalQuantifier(e *Expression, st *State, en env) (Value, error) {
	domains := make([][]*Object, len(e.vars))
	for i, v := range e.vars {
		domains[i] = ev.problem.ObjectsOfType(v.typ)
	}
	exists := e.op == OpExists
	result := !exists
	var evalErr error
	ForEachTuple(domains, func(tuple []*Object) bool {
		inner := env{params: en.params, vars: make(map[*Variable]*Object, len(en.vars)+len(tuple))}
		for v, o := range en.vars {
			inner.vars[v] = o
		}
		for i, v := range e.vars {
			inner.vars[v] = tuple[i]
		}
		b, err := ev.evalBool(e.args[0], st, inner)
		if err != nil {
			evalErr = err
			return false
		}
		if b == exists {
			result = exists
			return false
		}
		return true
	})
	return BoolValue(result), evalErr
}

func (ev *Evaluator) evalBool(e *Expression, st *State, en env) (bool, error) {
	v, err := ev.eval(e, st, en)
	if err != nil {
		return false, err
	}
	if v.kind != BoolKind {
		return false, fmt.Errorf("expression %s is not boolean", e)
	}
	return v.b, nil
}

func (ev *Evaluator) evalNumber(e *Expression, st *State, en env) (Value, error) {
	v, err := ev.eval(e, st, en)
	if err != nil {
		return Value{}, err
	}
	if !v.IsNumeric() {
		return Value{}, fmt.Errorf("expression %s is not numeric", e)
	}
	return v, nil
}

func (ev *Evaluator) evalPair(e *Expression, st *State, en env) (Value, Value, error) {
	l, err := ev.evalNumber(e.args[0], st, en)
	if err != nil {
		return Value{}, Value{}, err
	}
	r, err := ev.evalNumber(e.args[1], st, en)
	if err != nil {
		return Value{}, Value{}, err
	}
	return l, r, nil
}
