package grounding

import (
	"github.com/openfroyo/planforge/pkg/model"
)

// simplifier expands quantifiers over the objects of a problem and folds
// boolean structure and comparisons between constants. Arithmetic is left
// to the evaluator.
type simplifier struct {
	problem *model.Problem
}

func terms(in []*model.Expression) []model.Term {
	out := make([]model.Term, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}

func (s *simplifier) simplify(e *model.Expression) *model.Expression {
	switch e.Op() {
	case model.OpBool, model.OpInt, model.OpReal, model.OpObject, model.OpParameter, model.OpVariable:
		return e
	case model.OpExists, model.OpForall:
		return s.expand(e)
	}

	args := e.Args()
	changed := false
	for i, a := range args {
		sa := s.simplify(a)
		if sa != a {
			args[i] = sa
			changed = true
		}
	}

	switch e.Op() {
	case model.OpAnd:
		return foldAnd(args)
	case model.OpOr:
		return foldOr(args)
	case model.OpNot:
		return foldNot(args[0])
	case model.OpImplies:
		return foldImplies(args[0], args[1])
	case model.OpIff:
		return foldIff(args[0], args[1])
	case model.OpEquals, model.OpLE, model.OpLT:
		if v, ok := compareConstants(e.Op(), args[0], args[1]); ok {
			return model.Bool(v)
		}
	}
	if !changed {
		return e
	}
	return rebuild(e, args)
}

// expand replaces a quantifier by the disjunction or conjunction of its body
// over every binding of its variables.
func (s *simplifier) expand(e *model.Expression) *model.Expression {
	vars := e.Variables()
	domains := make([][]*model.Object, len(vars))
	for i, v := range vars {
		domains[i] = s.problem.ObjectsOfType(v.Type())
	}
	body := e.Arg(0)

	var parts []*model.Expression
	model.ForEachTuple(domains, func(tuple []*model.Object) bool {
		binding := make(map[*model.Variable]*model.Object, len(vars))
		for i, v := range vars {
			binding[v] = tuple[i]
		}
		parts = append(parts, s.simplify(body.SubstituteVariables(binding)))
		return true
	})
	if e.Op() == model.OpExists {
		return foldOr(parts)
	}
	return foldAnd(parts)
}

func rebuild(e *model.Expression, args []*model.Expression) *model.Expression {
	switch e.Op() {
	case model.OpFluent:
		return e.Fluent().Of(terms(args)...)
	case model.OpEquals:
		return model.Equals(args[0], args[1])
	case model.OpLE:
		return model.LE(args[0], args[1])
	case model.OpLT:
		return model.LT(args[0], args[1])
	case model.OpPlus:
		return model.Plus(terms(args)...)
	case model.OpMinus:
		return model.Minus(args[0], args[1])
	case model.OpTimes:
		return model.Times(terms(args)...)
	case model.OpDiv:
		return model.Div(args[0], args[1])
	}
	return e
}

func foldAnd(args []*model.Expression) *model.Expression {
	var kept []*model.Expression
	for _, a := range args {
		switch {
		case a.IsFalse():
			return model.False()
		case a.IsTrue():
			continue
		case a.Op() == model.OpAnd:
			kept = append(kept, a.Args()...)
		default:
			kept = append(kept, a)
		}
	}
	return model.And(terms(kept)...)
}

func foldOr(args []*model.Expression) *model.Expression {
	var kept []*model.Expression
	for _, a := range args {
		switch {
		case a.IsTrue():
			return model.True()
		case a.IsFalse():
			continue
		case a.Op() == model.OpOr:
			kept = append(kept, a.Args()...)
		default:
			kept = append(kept, a)
		}
	}
	return model.Or(terms(kept)...)
}

func foldNot(a *model.Expression) *model.Expression {
	switch {
	case a.Op() == model.OpBool:
		return model.Bool(!a.BoolValue())
	case a.Op() == model.OpNot:
		return a.Arg(0)
	}
	return model.Not(a)
}

func foldImplies(a, b *model.Expression) *model.Expression {
	switch {
	case a.IsFalse(), b.IsTrue():
		return model.True()
	case a.IsTrue():
		return b
	case b.IsFalse():
		return foldNot(a)
	}
	return model.Implies(a, b)
}

func foldIff(a, b *model.Expression) *model.Expression {
	switch {
	case a.Op() == model.OpBool && b.Op() == model.OpBool:
		return model.Bool(a.BoolValue() == b.BoolValue())
	case a.IsTrue():
		return b
	case b.IsTrue():
		return a
	case a.IsFalse():
		return foldNot(b)
	case b.IsFalse():
		return foldNot(a)
	}
	return model.Iff(a, b)
}

// compareConstants evaluates a comparison whose operands are both constants.
func compareConstants(op model.Op, a, b *model.Expression) (bool, bool) {
	if !a.IsConstant() || !b.IsConstant() {
		return false, false
	}
	switch {
	case a.Op() == model.OpObject && b.Op() == model.OpObject:
		if op != model.OpEquals {
			return false, false
		}
		return a.Object() == b.Object(), true
	case a.Op() == model.OpBool && b.Op() == model.OpBool:
		if op != model.OpEquals {
			return false, false
		}
		return a.BoolValue() == b.BoolValue(), true
	case isNumber(a) && isNumber(b):
		x, y := a.NumberValue(), b.NumberValue()
		switch op {
		case model.OpEquals:
			return x == y, true
		case model.OpLE:
			return x <= y, true
		default:
			return x < y, true
		}
	}
	return false, false
}

func isNumber(e *model.Expression) bool {
	return e.Op() == model.OpInt || e.Op() == model.OpReal
}
