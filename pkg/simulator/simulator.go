// Package simulator implements the state-transition semantics of sequential
// plans: applicability, simultaneous effect application and goal checking.
package simulator

import (
	"fmt"
	"math"

	"github.com/openfroyo/planforge/pkg/model"
)

// Simulator replays action instances over states of a single problem.
type Simulator struct {
	problem   *model.Problem
	evaluator *model.Evaluator
	types     map[string]*model.Type
}

// New returns a simulator for p.
func New(p *model.Problem) *Simulator {
	s := &Simulator{
		problem:   p,
		evaluator: model.NewEvaluator(p),
		types:     make(map[string]*model.Type),
	}
	for _, f := range p.Fluents() {
		s.types[f.Name()] = f.Type()
	}
	return s
}

// Problem returns the simulated problem.
func (s *Simulator) Problem() *model.Problem { return s.problem }

// Evaluator returns the evaluator bound to the problem.
func (s *Simulator) Evaluator() *model.Evaluator { return s.evaluator }

// InitialState builds the complete initial state of the problem.
func (s *Simulator) InitialState() (*model.State, error) {
	all, err := s.problem.InitialValues()
	if err != nil {
		return nil, err
	}
	st := model.NewState()
	for _, a := range all {
		v, err := model.ValueOf(a.Value)
		if err != nil {
			return nil, fmt.Errorf("initial value of %s: %w", a.Fluent, err)
		}
		st.Set(a.Fluent.String(), v)
	}
	return st, nil
}

// Violation describes why an action instance cannot be applied.
type Violation struct {
	// Condition is the failing precondition, nil for effect failures.
	Condition *model.Expression

	// Reason explains the failure.
	Reason string
}

func (v *Violation) String() string {
	if v.Condition != nil {
		return fmt.Sprintf("precondition %s is not satisfied", v.Condition)
	}
	return v.Reason
}

// CheckPreconditions returns the first violated precondition of ai in st, or nil.
func (s *Simulator) CheckPreconditions(st *model.State, ai *model.ActionInstance) (*Violation, error) {
	binding := ai.Binding()
	for _, c := range ai.Action().Preconditions() {
		ok, err := s.evaluator.EvalBool(c, st, binding)
		if err != nil {
			return nil, fmt.Errorf("evaluating precondition %s: %w", c, err)
		}
		if !ok {
			return &Violation{Condition: c.Substitute(binding)}, nil
		}
	}
	return nil, nil
}

type update struct {
	assign   *model.Value
	delta    float64
	hasDelta bool
	intDelta bool
	effect   *model.Effect
}

// Apply computes the successor of st under ai. Preconditions are not
// checked. Guards and values are evaluated in st and all effects are applied
// together. A violation is returned for conflicting effects or values
// outside a fluent's bounds.
func (s *Simulator) Apply(st *model.State, ai *model.ActionInstance) (*model.State, *Violation, error) {
	binding := ai.Binding()
	updates := make(map[string]*update)
	var order []string

	for _, e := range ai.Action().Effects() {
		if e.IsConditional() {
			ok, err := s.evaluator.EvalBool(e.Condition(), st, binding)
			if err != nil {
				return nil, nil, fmt.Errorf("evaluating guard of %s: %w", e, err)
			}
			if !ok {
				continue
			}
		}
		key, err := s.evaluator.GroundKey(e.Fluent(), st, binding)
		if err != nil {
			return nil, nil, err
		}
		v, err := s.evaluator.Eval(e.Value(), st, binding)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluating %s: %w", e, err)
		}
		u, seen := updates[key]
		if !seen {
			u = &update{intDelta: true}
			updates[key] = u
			order = append(order, key)
		}
		switch e.Kind() {
		case model.AssignEffect:
			if u.hasDelta {
				return nil, &Violation{Reason: fmt.Sprintf("conflicting effects on %s", key)}, nil
			}
			if u.assign != nil && !u.assign.Equal(v) {
				return nil, &Violation{Reason: fmt.Sprintf("conflicting effects on %s: %s and %s", key, u.assign, v)}, nil
			}
			vv := v
			u.assign = &vv
		default:
			if u.assign != nil {
				return nil, &Violation{Reason: fmt.Sprintf("conflicting effects on %s", key)}, nil
			}
			if !v.IsNumeric() {
				return nil, nil, fmt.Errorf("effect %s has a non-numeric delta", e)
			}
			d := v.Number()
			if e.Kind() == model.DecreaseEffect {
				d = -d
			}
			u.delta += d
			u.hasDelta = true
			u.intDelta = u.intDelta && v.Kind() == model.IntKind
		}
		u.effect = e
	}

	next := st.Clone()
	for _, key := range order {
		u := updates[key]
		t := s.types[u.effect.Fluent().Fluent().Name()]
		var v model.Value
		if u.assign != nil {
			v = *u.assign
		} else {
			cur, ok := st.Get(key)
			if !ok {
				return nil, nil, fmt.Errorf("no value for %s in state", key)
			}
			n := cur.Number() + u.delta
			if cur.Kind() == model.IntKind && u.intDelta {
				v = model.IntValue(int64(n))
			} else {
				v = model.RealValue(n)
			}
		}
		if t != nil && t.IsNumeric() {
			if !v.IsNumeric() {
				return nil, nil, fmt.Errorf("effect on %s assigns non-numeric value %s", key, v)
			}
			if t.IsInt() && v.Kind() != model.IntKind {
				n := v.Number()
				if n != math.Trunc(n) || math.IsInf(n, 0) {
					return nil, &Violation{Reason: fmt.Sprintf("value %s of int fluent %s is not an integer", v, key)}, nil
				}
				v = model.IntValue(int64(n))
			}
			if !t.InBounds(v.Number()) {
				return nil, &Violation{Reason: fmt.Sprintf("value %s of %s is outside the bounds of %s", v, key, t)}, nil
			}
		}
		next.Set(key, v)
	}
	return next, nil, nil
}

// Step checks preconditions and applies ai. A nil state with a violation
// means ai is not applicable in st.
func (s *Simulator) Step(st *model.State, ai *model.ActionInstance) (*model.State, *Violation, error) {
	viol, err := s.CheckPreconditions(st, ai)
	if err != nil || viol != nil {
		return nil, viol, err
	}
	return s.Apply(st, ai)
}

// UnmetGoal returns the first goal not satisfied in st, or nil.
func (s *Simulator) UnmetGoal(st *model.State) (*model.Expression, error) {
	for _, g := range s.problem.Goals() {
		ok, err := s.evaluator.EvalBool(g, st, nil)
		if err != nil {
			return nil, fmt.Errorf("evaluating goal %s: %w", g, err)
		}
		if !ok {
			return g, nil
		}
	}
	return nil, nil
}

// CountUnmetGoals returns how many goals do not hold in st.
func (s *Simulator) CountUnmetGoals(st *model.State) (int, error) {
	n := 0
	for _, g := range s.problem.Goals() {
		ok, err := s.evaluator.EvalBool(g, st, nil)
		if err != nil {
			return 0, err
		}
		if !ok {
			n++
		}
	}
	return n, nil
}

// Instances enumerates every well-typed instance of a in parameter order.
func (s *Simulator) Instances(a *model.Action) []*model.ActionInstance {
	params := a.Parameters()
	domains := make([][]*model.Object, len(params))
	for i, p := range params {
		domains[i] = s.problem.ObjectsOfType(p.Type())
	}
	var out []*model.ActionInstance
	model.ForEachTuple(domains, func(tuple []*model.Object) bool {
		ai, err := model.NewActionInstance(a, tuple...)
		if err == nil {
			out = append(out, ai)
		}
		return true
	})
	return out
}
