// Package grounding compiles a problem with parametrized actions into an
// equivalent problem whose actions have no parameters.
//
// Every action is instantiated for each tuple of objects matching its
// parameter types, subtypes included. Bodies are substituted and simplified,
// quantifiers are expanded, and instances that can never apply are dropped.
// The result carries a map-back function lifting ground action instances to
// instances of the original problem, so a plan found for the ground problem
// can be validated against the original one.
package grounding

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
)

// DefaultLimit is the default cap on enumerated parameter tuples.
const DefaultLimit = 100000

// Options configures grounding.
type Options struct {
	// Limit caps the total number of enumerated tuples. Zero means DefaultLimit.
	Limit int

	// PruneStatic drops instances requiring a static fluent application that
	// is initially false.
	PruneStatic bool
}

// OptionsFromParams reads the "limit" and "prune_static" engine parameters.
func OptionsFromParams(params engine.Params) (Options, error) {
	limit, err := params.Int("limit", DefaultLimit)
	if err != nil {
		return Options{}, err
	}
	if limit <= 0 {
		return Options{}, fmt.Errorf("parameter limit must be positive, got %d", limit)
	}
	prune, err := strconv.ParseBool(params.Get("prune_static", "false"))
	if err != nil {
		return Options{}, fmt.Errorf("parameter prune_static: %w", err)
	}
	return Options{Limit: limit, PruneStatic: prune}, nil
}

// lifted is the original action and parameters behind a ground action.
type lifted struct {
	action *model.Action
	params []*model.Object
}

// Result is a ground problem with its map-back function.
type Result struct {
	Problem *model.Problem

	// Tuples is the number of enumerated parameter tuples.
	Tuples int

	// Dropped counts instances removed because they can never apply.
	Dropped int

	origin map[*model.Action]lifted
}

// MapBack lifts an instance of a ground action to the original problem.
func (r *Result) MapBack(ai *model.ActionInstance) ([]*model.ActionInstance, error) {
	l, ok := r.origin[ai.Action()]
	if !ok {
		return nil, fmt.Errorf("action %s is not part of the ground problem", ai.Action().Name())
	}
	orig, err := model.NewActionInstance(l.action, l.params...)
	if err != nil {
		return nil, err
	}
	return []*model.ActionInstance{orig}, nil
}

// Origin returns the original action and parameters of a ground action.
func (r *Result) Origin(a *model.Action) (*model.Action, []*model.Object, bool) {
	l, ok := r.origin[a]
	if !ok {
		return nil, nil, false
	}
	return l.action, append([]*model.Object(nil), l.params...), true
}

// Ground compiles p. p is not modified; the result shares fluents, objects,
// initial values and goals with it.
func Ground(ctx context.Context, p *model.Problem, opts Options) (*Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	actions := p.Actions()
	domains := make([][][]*model.Object, len(actions))
	total := 0
	for i, a := range actions {
		params := a.Parameters()
		domains[i] = make([][]*model.Object, len(params))
		count := 1
		for j, param := range params {
			domains[i][j] = p.ObjectsOfType(param.Type())
			count *= len(domains[i][j])
			if count > limit {
				break
			}
		}
		total += count
		if total > limit {
			return nil, &engine.GroundingLimitExceededError{Action: a.Name(), Limit: limit, Count: total}
		}
	}

	g := &grounder{
		problem: p,
		simp:    &simplifier{problem: p},
		opts:    opts,
		names:   make(map[string]int),
		static:  staticFluents(p),
		out:     p.CloneWithoutActions(p.Name()),
		res:     &Result{origin: make(map[*model.Action]lifted)},
	}
	g.res.Problem = g.out

	for i, a := range actions {
		var err error
		model.ForEachTuple(domains[i], func(tuple []*model.Object) bool {
			g.res.Tuples++
			if g.res.Tuples%1024 == 0 {
				if err = ctx.Err(); err != nil {
					return false
				}
			}
			err = g.instantiate(a, tuple)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	}
	return g.res, nil
}

type grounder struct {
	problem *model.Problem
	simp    *simplifier
	opts    Options
	names   map[string]int
	static  map[*model.Fluent]bool
	out     *model.Problem
	res     *Result
}

func (g *grounder) instantiate(a *model.Action, tuple []*model.Object) error {
	binding := make(map[*model.Parameter]*model.Object, len(tuple))
	for i, param := range a.Parameters() {
		binding[param] = tuple[i]
	}

	var pre []*model.Expression
	for _, c := range a.Preconditions() {
		pre = append(pre, g.simp.simplify(c.Substitute(binding)))
	}
	cond := foldAnd(pre)
	if cond.IsFalse() {
		g.res.Dropped++
		return nil
	}
	if g.opts.PruneStatic && g.staticallyFalse(cond) {
		g.res.Dropped++
		return nil
	}

	var effects []*model.Effect
	for _, e := range a.Effects() {
		ge := e.Substitute(binding)
		fluent := g.simp.simplify(ge.Fluent())
		value := g.simp.simplify(ge.Value())
		var guard model.Term
		if ge.IsConditional() {
			c := g.simp.simplify(ge.Condition())
			if c.IsFalse() {
				continue
			}
			if !c.IsTrue() {
				guard = c
			}
		}
		effects = append(effects, model.NewEffect(ge.Kind(), fluent, value, guard))
	}
	if conflicting(effects) {
		g.res.Dropped++
		return nil
	}

	ground := model.NewAction(g.name(a, tuple))
	for _, c := range conjuncts(cond) {
		ground.AddPrecondition(c)
	}
	ground.AddEffects(effects...)
	if err := g.out.AddAction(ground); err != nil {
		return err
	}
	g.res.origin[ground] = lifted{action: a, params: tuple}
	return nil
}

// name derives a unique name from the action and its actual parameters; a
// numeric suffix resolves collisions in enumeration order.
func (g *grounder) name(a *model.Action, tuple []*model.Object) string {
	parts := make([]string, 0, len(tuple)+1)
	parts = append(parts, a.Name())
	for _, o := range tuple {
		parts = append(parts, o.Name())
	}
	base := strings.Join(parts, "_")
	name := base
	for n := g.names[base]; ; n++ {
		if n > 0 {
			name = base + "_" + strconv.Itoa(n+1)
		}
		if _, taken := g.out.ActionByName(name); !taken {
			g.names[base] = n + 1
			return name
		}
	}
}

// staticallyFalse reports whether a conjunct of cond is a ground application
// of a static boolean fluent whose initial value is false.
func (g *grounder) staticallyFalse(cond *model.Expression) bool {
	for _, c := range conjuncts(cond) {
		if !c.IsFluentApp() || !g.static[c.Fluent()] || !c.Fluent().Type().IsBool() || !c.IsGround() {
			continue
		}
		if !constantArgs(c) {
			continue
		}
		v, err := g.problem.InitialValue(c)
		if err == nil && v.IsFalse() {
			return true
		}
	}
	return false
}

// staticFluents returns the fluents no action ever changes.
func staticFluents(p *model.Problem) map[*model.Fluent]bool {
	changed := make(map[*model.Fluent]bool)
	for _, a := range p.Actions() {
		for _, e := range a.Effects() {
			changed[e.Fluent().Fluent()] = true
		}
	}
	out := make(map[*model.Fluent]bool)
	for _, f := range p.Fluents() {
		if !changed[f] {
			out[f] = true
		}
	}
	return out
}

// conflicting reports two unconditional assignments of different constants
// to the same ground fluent application.
func conflicting(effects []*model.Effect) bool {
	assigned := make(map[string]*model.Expression)
	for _, e := range effects {
		if e.Kind() != model.AssignEffect || e.IsConditional() || !e.Value().IsConstant() || !constantArgs(e.Fluent()) {
			continue
		}
		key := e.Fluent().String()
		prev, ok := assigned[key]
		if !ok {
			assigned[key] = e.Value()
			continue
		}
		if same, known := compareConstants(model.OpEquals, prev, e.Value()); known && !same {
			return true
		}
	}
	return false
}

func constantArgs(app *model.Expression) bool {
	for _, a := range app.Args() {
		if !a.IsConstant() {
			return false
		}
	}
	return true
}

func conjuncts(e *model.Expression) []*model.Expression {
	switch {
	case e.IsTrue():
		return nil
	case e.Op() == model.OpAnd:
		return e.Args()
	}
	return []*model.Expression{e}
}
