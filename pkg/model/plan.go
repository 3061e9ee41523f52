package model

import (
	"fmt"
	"strings"
)

// ActionInstance is an action with a fully bound parameter tuple.
type ActionInstance struct {
	action *Action
	params []*Object
}

// NewActionInstance binds params to the formal parameters of a, checking
// arity and types.
func NewActionInstance(a *Action, params ...*Object) (*ActionInstance, error) {
	if len(params) != len(a.params) {
		return nil, fmt.Errorf("action %q expects %d parameters, got %d", a.name, len(a.params), len(params))
	}
	for i, o := range params {
		if !o.typ.IsSubtypeOf(a.params[i].typ) {
			return nil, fmt.Errorf("action %q: parameter %q expects %s, got %s of type %s",
				a.name, a.params[i].name, a.params[i].typ, o.name, o.typ)
		}
	}
	return &ActionInstance{action: a, params: append([]*Object(nil), params...)}, nil
}

// Action returns the instantiated action.
func (ai *ActionInstance) Action() *Action { return ai.action }

// Parameters returns a copy of the actual parameters.
func (ai *ActionInstance) Parameters() []*Object {
	return append([]*Object(nil), ai.params...)
}

// Binding maps each formal parameter to its actual object.
func (ai *ActionInstance) Binding() map[*Parameter]*Object {
	out := make(map[*Parameter]*Object, len(ai.params))
	for i, p := range ai.action.params {
		out[p] = ai.params[i]
	}
	return out
}

func (ai *ActionInstance) String() string {
	if len(ai.params) == 0 {
		return ai.action.name
	}
	names := make([]string, len(ai.params))
	for i, o := range ai.params {
		names[i] = o.name
	}
	return ai.action.name + "(" + strings.Join(names, ", ") + ")"
}

// MapBackFunc maps an action instance of a compiled problem to the
// instances of the original problem it stands for.
type MapBackFunc func(*ActionInstance) ([]*ActionInstance, error)

// SequentialPlan is an immutable ordered sequence of action instances.
type SequentialPlan struct {
	actions []*ActionInstance
}

// NewSequentialPlan creates a plan.
func NewSequentialPlan(actions ...*ActionInstance) *SequentialPlan {
	return &SequentialPlan{actions: append([]*ActionInstance(nil), actions...)}
}

// Actions returns a copy of the plan steps.
func (p *SequentialPlan) Actions() []*ActionInstance {
	return append([]*ActionInstance(nil), p.actions...)
}

// Len returns the number of steps.
func (p *SequentialPlan) Len() int { return len(p.actions) }

// ReplaceActionInstances returns a new plan where every step is replaced by
// the instances fn maps it to.
func (p *SequentialPlan) ReplaceActionInstances(fn MapBackFunc) (*SequentialPlan, error) {
	out := make([]*ActionInstance, 0, len(p.actions))
	for i, ai := range p.actions {
		mapped, err := fn(ai)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, ai, err)
		}
		out = append(out, mapped...)
	}
	return &SequentialPlan{actions: out}, nil
}

func (p *SequentialPlan) String() string {
	parts := make([]string, len(p.actions))
	for i, ai := range p.actions {
		parts[i] = ai.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
