package model

import "github.com/openfroyo/planforge/pkg/capability"

// computeKind derives the problem features by static inspection. Every rule
// only adds features, so extending a problem never shrinks its kind.
func computeKind(p *Problem) capability.Kind {
	features := make(map[capability.Feature]struct{})
	add := func(f capability.Feature) { features[f] = struct{}{} }

	for _, t := range p.types {
		add(capability.FlatTyping)
		if t.parent != nil {
			add(capability.HierarchicalTyping)
		}
	}

	for _, f := range p.fluents {
		kindOfValueType(f.typ, add)
	}

	if len(p.actions) > 0 {
		add(capability.ActionBased)
	}
	for _, a := range p.actions {
		if len(a.params) > 0 {
			add(capability.ActionParameters)
		}
		for _, c := range a.preconditions {
			kindOfCondition(c, add)
		}
		for _, e := range a.effects {
			if e.condition != nil {
				add(capability.ConditionalEffects)
				kindOfCondition(e.condition, add)
			}
			switch e.kind {
			case IncreaseEffect:
				add(capability.IncreaseEffects)
			case DecreaseEffect:
				add(capability.DecreaseEffects)
			}
		}
	}

	for _, g := range p.goals {
		kindOfCondition(g, add)
	}

	out := make([]capability.Feature, 0, len(features))
	for f := range features {
		out = append(out, f)
	}
	return capability.NewKind(out...)
}

func kindOfValueType(t *Type, add func(capability.Feature)) {
	switch {
	case t.IsInt():
		add(capability.NumericFluents)
		add(capability.DiscreteNumbers)
	case t.IsReal():
		add(capability.NumericFluents)
		add(capability.ContinuousNumbers)
	case t.IsUser():
		add(capability.ObjectFluents)
	}
}

// kindOfCondition flags the operators used anywhere below e.
func kindOfCondition(e *Expression, add func(capability.Feature)) {
	e.Walk(func(n *Expression) bool {
		switch n.Op() {
		case OpNot:
			add(capability.NegativeConditions)
		case OpOr, OpImplies, OpIff:
			add(capability.DisjunctiveConditions)
		case OpEquals:
			add(capability.Equality)
		case OpExists:
			add(capability.ExistentialConditions)
		case OpForall:
			add(capability.UniversalConditions)
		}
		return true
	})
}
