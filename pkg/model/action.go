package model

import (
	"fmt"
	"strings"
)

// EffectKind tells how an effect changes its fluent.
type EffectKind int

const (
	// AssignEffect sets the fluent to the value.
	AssignEffect EffectKind = iota
	// IncreaseEffect adds the value to a numeric fluent.
	IncreaseEffect
	// DecreaseEffect subtracts the value from a numeric fluent.
	DecreaseEffect
)

func (k EffectKind) String() string {
	switch k {
	case IncreaseEffect:
		return "increase"
	case DecreaseEffect:
		return "decrease"
	default:
		return "assign"
	}
}

// Effect changes the value of a fluent application, optionally under a guard.
type Effect struct {
	kind      EffectKind
	fluent    *Expression
	value     *Expression
	condition *Expression
}

// NewEffect creates an effect. condition may be nil.
func NewEffect(kind EffectKind, fluent, value Term, condition Term) *Effect {
	e := &Effect{kind: kind, fluent: fluent.Expr(), value: value.Expr()}
	if condition != nil {
		e.condition = condition.Expr()
	}
	return e
}

// Kind returns how the effect changes its fluent.
func (e *Effect) Kind() EffectKind { return e.kind }

// Fluent returns the affected fluent application.
func (e *Effect) Fluent() *Expression { return e.fluent }

// Value returns the assigned value or delta.
func (e *Effect) Value() *Expression { return e.value }

// Condition returns the guard, nil for unconditional effects.
func (e *Effect) Condition() *Expression { return e.condition }

// IsConditional reports whether the effect has a guard.
func (e *Effect) IsConditional() bool { return e.condition != nil }

// Substitute binds parameters in every part of the effect.
func (e *Effect) Substitute(binding map[*Parameter]*Object) *Effect {
	out := &Effect{kind: e.kind, fluent: e.fluent.Substitute(binding), value: e.value.Substitute(binding)}
	if e.condition != nil {
		out.condition = e.condition.Substitute(binding)
	}
	return out
}

// WithCondition returns a copy of e guarded by cond, nil removes the guard.
func (e *Effect) WithCondition(cond *Expression) *Effect {
	cp := *e
	cp.condition = cond
	return &cp
}

func (e *Effect) String() string {
	var body string
	switch e.kind {
	case IncreaseEffect:
		body = fmt.Sprintf("%s += %s", e.fluent, e.value)
	case DecreaseEffect:
		body = fmt.Sprintf("%s -= %s", e.fluent, e.value)
	default:
		body = fmt.Sprintf("%s := %s", e.fluent, e.value)
	}
	if e.condition != nil {
		return fmt.Sprintf("if %s then %s", e.condition, body)
	}
	return body
}

// Action is an instantaneous action template with typed parameters.
type Action struct {
	name          string
	params        []*Parameter
	preconditions []*Expression
	effects       []*Effect
	rev           uint64
}

// NewAction creates an action with the given formal parameters.
func NewAction(name string, params ...*Parameter) *Action {
	return &Action{name: name, params: append([]*Parameter(nil), params...)}
}

// Name returns the action name.
func (a *Action) Name() string { return a.name }

// Parameters returns a copy of the formal parameters.
func (a *Action) Parameters() []*Parameter {
	return append([]*Parameter(nil), a.params...)
}

// Arity returns the number of parameters.
func (a *Action) Arity() int { return len(a.params) }

// Parameter returns the parameter with the given name, or nil.
func (a *Action) Parameter(name string) *Parameter {
	for _, p := range a.params {
		if p.name == name {
			return p
		}
	}
	return nil
}

// Preconditions returns a copy of the preconditions.
func (a *Action) Preconditions() []*Expression {
	return append([]*Expression(nil), a.preconditions...)
}

// Effects returns a copy of the effects.
func (a *Action) Effects() []*Effect {
	return append([]*Effect(nil), a.effects...)
}

// AddPrecondition adds a condition that must hold for the action to apply.
func (a *Action) AddPrecondition(cond Term) {
	a.preconditions = append(a.preconditions, cond.Expr())
	a.rev++
}

// AddEffect adds an unconditional assignment.
func (a *Action) AddEffect(fluent, value Term) {
	a.AddEffects(NewEffect(AssignEffect, fluent, value, nil))
}

// AddConditionalEffect adds an assignment that only applies when cond holds.
func (a *Action) AddConditionalEffect(cond, fluent, value Term) {
	a.AddEffects(NewEffect(AssignEffect, fluent, value, cond))
}

// AddIncreaseEffect adds delta to a numeric fluent.
func (a *Action) AddIncreaseEffect(fluent, delta Term) {
	a.AddEffects(NewEffect(IncreaseEffect, fluent, delta, nil))
}

// AddDecreaseEffect subtracts delta from a numeric fluent.
func (a *Action) AddDecreaseEffect(fluent, delta Term) {
	a.AddEffects(NewEffect(DecreaseEffect, fluent, delta, nil))
}

// AddEffects appends prebuilt effects.
func (a *Action) AddEffects(effects ...*Effect) {
	a.effects = append(a.effects, effects...)
	a.rev++
}

// Clone returns an independent copy of the action sharing immutable parts.
func (a *Action) Clone() *Action {
	return &Action{
		name:          a.name,
		params:        append([]*Parameter(nil), a.params...),
		preconditions: append([]*Expression(nil), a.preconditions...),
		effects:       append([]*Effect(nil), a.effects...),
	}
}

func (a *Action) String() string {
	var sb strings.Builder
	sb.WriteString("action ")
	sb.WriteString(a.name)
	if len(a.params) > 0 {
		parts := make([]string, len(a.params))
		for i, p := range a.params {
			parts[i] = p.typ.String() + " " + p.name
		}
		sb.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	sb.WriteString(" {\n    preconditions = [\n")
	for _, p := range a.preconditions {
		sb.WriteString("      " + p.String() + "\n")
	}
	sb.WriteString("    ]\n    effects = [\n")
	for _, e := range a.effects {
		sb.WriteString("      " + e.String() + "\n")
	}
	sb.WriteString("    ]\n  }")
	return sb.String()
}
