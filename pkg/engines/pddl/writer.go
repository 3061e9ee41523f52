package pddl

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/model"
)

// ErrInexpressible is returned by Write for problems PDDL 2.1 cannot state.
var ErrInexpressible = errors.New("not expressible in PDDL")

// Files is a rendered domain and problem pair.
type Files struct {
	Domain  string
	Problem string

	// Names maps PDDL identifiers back to the model.
	Names *Names
}

// Kind returns the features the writer can express.
func Kind() capability.Kind {
	var features []capability.Feature
	for _, f := range capability.AllFeatures() {
		switch f {
		case capability.ContinuousTime, capability.ObjectFluents:
		default:
			features = append(features, f)
		}
	}
	return capability.NewKind(features...)
}

// Write renders p as a PDDL 2.1 domain and problem. The output depends only
// on the problem: declarations are sorted and identifiers are sanitized
// deterministically.
func Write(p *model.Problem) (*Files, error) {
	if err := checkExpressible(p); err != nil {
		return nil, err
	}

	w := &writer{
		p:     p,
		names: assignNames(p),
		needs: make(map[string]bool),
	}

	domain, err := w.domain()
	if err != nil {
		return nil, err
	}
	problem, err := w.problem()
	if err != nil {
		return nil, err
	}
	return &Files{Domain: domain, Problem: problem, Names: w.names}, nil
}

func checkExpressible(p *model.Problem) error {
	for _, f := range p.Fluents() {
		t := f.Type()
		switch {
		case t.IsUser():
			return fmt.Errorf("%w: fluent %s has object type %s", ErrInexpressible, f.Name(), t)
		case t.IsNumeric() && t.IsBounded():
			return fmt.Errorf("%w: fluent %s has bounded type %s", ErrInexpressible, f.Name(), t)
		}
		for _, param := range f.Signature() {
			if !param.Type().IsUser() {
				return fmt.Errorf("%w: fluent %s has parameter %s of type %s", ErrInexpressible, f.Name(), param.Name(), param.Type())
			}
		}
	}
	for _, a := range p.Actions() {
		for _, param := range a.Parameters() {
			if !param.Type().IsUser() {
				return fmt.Errorf("%w: action %s has parameter %s of type %s", ErrInexpressible, a.Name(), param.Name(), param.Type())
			}
		}
	}
	return nil
}

type writer struct {
	p     *model.Problem
	names *Names

	// needs collects requirements introduced by rewrites.
	needs map[string]bool
}

// scope names the parameters and variables visible in an expression.
type scope struct {
	params map[*model.Parameter]string
	vars   map[*model.Variable]string
	used   *namespace
}

func newScope() *scope {
	return &scope{
		params: make(map[*model.Parameter]string),
		vars:   make(map[*model.Variable]string),
		used:   newNamespace(),
	}
}

func (s *scope) param(p *model.Parameter) string {
	name := s.used.assign(p.Name())
	s.params[p] = name
	return name
}

func (s *scope) variable(v *model.Variable) string {
	if name, ok := s.vars[v]; ok {
		return name
	}
	name := s.used.assign(v.Name())
	s.vars[v] = name
	return name
}

func (w *writer) domain() (string, error) {
	var body strings.Builder

	if types := w.sortedTypes(); len(types) > 0 {
		body.WriteString("  (:types\n")
		for _, t := range types {
			parent := "object"
			if t.Parent() != nil {
				parent = w.names.types[t.Parent()]
			}
			fmt.Fprintf(&body, "    %s - %s\n", w.names.types[t], parent)
		}
		body.WriteString("  )\n")
	}

	var predicates, functions []*model.Fluent
	for _, f := range w.sortedFluents() {
		if f.Type().IsBool() {
			predicates = append(predicates, f)
		} else {
			functions = append(functions, f)
		}
	}
	if len(predicates) > 0 {
		body.WriteString("  (:predicates\n")
		for _, f := range predicates {
			fmt.Fprintf(&body, "    %s\n", w.signature(f))
		}
		body.WriteString("  )\n")
	}
	if len(functions) > 0 {
		body.WriteString("  (:functions\n")
		for _, f := range functions {
			fmt.Fprintf(&body, "    %s\n", w.signature(f))
		}
		body.WriteString("  )\n")
	}

	for _, a := range w.sortedActions() {
		if err := w.action(&body, a); err != nil {
			return "", fmt.Errorf("action %s: %w", a.Name(), err)
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "(define (domain %s)\n", w.names.Domain)
	fmt.Fprintf(&out, "  (:requirements %s)\n", strings.Join(w.requirements(), " "))
	out.WriteString(body.String())
	out.WriteString(")\n")
	return out.String(), nil
}

func (w *writer) signature(f *model.Fluent) string {
	s := newScope()
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(w.names.fluents[f])
	for _, param := range f.Signature() {
		fmt.Fprintf(&b, " ?%s - %s", s.param(param), w.names.types[param.Type()])
	}
	b.WriteString(")")
	return b.String()
}

func (w *writer) action(b *strings.Builder, a *model.Action) error {
	s := newScope()
	fmt.Fprintf(b, "  (:action %s\n", w.names.actions[a])

	params := make([]string, len(a.Parameters()))
	for i, param := range a.Parameters() {
		params[i] = fmt.Sprintf("?%s - %s", s.param(param), w.names.types[param.Type()])
	}
	fmt.Fprintf(b, "    :parameters (%s)\n", strings.Join(params, " "))

	if pre := a.Preconditions(); len(pre) > 0 {
		var conds []string
		for _, c := range pre {
			text, err := w.expr(c, s)
			if err != nil {
				return err
			}
			conds = append(conds, text)
		}
		fmt.Fprintf(b, "    :precondition %s\n", conjunction(conds))
	}

	var effects []string
	for _, eff := range a.Effects() {
		parts, err := w.effect(eff, s)
		if err != nil {
			return err
		}
		effects = append(effects, parts...)
	}
	fmt.Fprintf(b, "    :effect %s\n", conjunction(effects))
	b.WriteString("  )\n")
	return nil
}

// effect renders one effect. A boolean assignment of a non-constant value
// becomes a pair of conditional effects.
func (w *writer) effect(eff *model.Effect, s *scope) ([]string, error) {
	target, err := w.expr(eff.Fluent(), s)
	if err != nil {
		return nil, err
	}
	var cond string
	if eff.IsConditional() {
		if cond, err = w.expr(eff.Condition(), s); err != nil {
			return nil, err
		}
	}
	guard := func(c, body string) string {
		if c == "" {
			return body
		}
		return fmt.Sprintf("(when %s %s)", c, body)
	}

	value := eff.Value()
	if eff.Fluent().Type().IsBool() {
		switch {
		case value.IsTrue():
			return []string{guard(cond, target)}, nil
		case value.IsFalse():
			return []string{guard(cond, "(not "+target+")")}, nil
		}
		v, err := w.expr(value, s)
		if err != nil {
			return nil, err
		}
		w.needs[":conditional-effects"] = true
		w.needs[":negative-preconditions"] = true
		pos, neg := v, "(not "+v+")"
		if cond != "" {
			pos, neg = conjunction([]string{cond, v}), conjunction([]string{cond, neg})
		}
		return []string{
			fmt.Sprintf("(when %s %s)", pos, target),
			fmt.Sprintf("(when %s (not %s))", neg, target),
		}, nil
	}

	v, err := w.expr(value, s)
	if err != nil {
		return nil, err
	}
	op := "assign"
	switch eff.Kind() {
	case model.IncreaseEffect:
		op = "increase"
	case model.DecreaseEffect:
		op = "decrease"
	}
	return []string{guard(cond, fmt.Sprintf("(%s %s %s)", op, target, v))}, nil
}

func (w *writer) expr(e *model.Expression, s *scope) (string, error) {
	switch e.Op() {
	case model.OpBool:
		if e.BoolValue() {
			return "(and)", nil
		}
		w.needs[":disjunctive-preconditions"] = true
		return "(or)", nil
	case model.OpInt, model.OpReal:
		return strconv.FormatFloat(e.NumberValue(), 'f', -1, 64), nil
	case model.OpObject:
		return w.names.objects[e.Object()], nil
	case model.OpParameter:
		name, ok := s.params[e.Parameter()]
		if !ok {
			return "", fmt.Errorf("unbound parameter %s", e.Parameter().Name())
		}
		return "?" + name, nil
	case model.OpVariable:
		name, ok := s.vars[e.Variable()]
		if !ok {
			return "", fmt.Errorf("unbound variable %s", e.Variable().Name())
		}
		return "?" + name, nil
	case model.OpFluent:
		args, err := w.exprs(e.Args(), s)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(append([]string{w.names.fluents[e.Fluent()]}, args...), " ") + ")", nil
	case model.OpExists, model.OpForall:
		var decls []string
		for _, v := range e.Variables() {
			decls = append(decls, fmt.Sprintf("?%s - %s", s.variable(v), w.names.types[v.Type()]))
		}
		body, err := w.expr(e.Arg(0), s)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s (%s) %s)", e.Op(), strings.Join(decls, " "), body), nil
	}

	args, err := w.exprs(e.Args(), s)
	if err != nil {
		return "", err
	}
	switch e.Op() {
	case model.OpAnd, model.OpOr:
		return "(" + strings.Join(append([]string{e.Op().String()}, args...), " ") + ")", nil
	case model.OpNot:
		return "(not " + args[0] + ")", nil
	case model.OpImplies:
		return fmt.Sprintf("(imply %s %s)", args[0], args[1]), nil
	case model.OpIff:
		w.needs[":disjunctive-preconditions"] = true
		return iff(args[0], args[1]), nil
	case model.OpEquals:
		if e.Arg(0).Type().IsBool() {
			w.needs[":disjunctive-preconditions"] = true
			return iff(args[0], args[1]), nil
		}
		return fmt.Sprintf("(= %s %s)", args[0], args[1]), nil
	case model.OpLE, model.OpLT:
		return fmt.Sprintf("(%s %s %s)", e.Op(), args[0], args[1]), nil
	case model.OpPlus, model.OpTimes:
		// PDDL arithmetic is binary
		out := args[0]
		for _, a := range args[1:] {
			out = fmt.Sprintf("(%s %s %s)", e.Op(), out, a)
		}
		return out, nil
	case model.OpMinus, model.OpDiv:
		return fmt.Sprintf("(%s %s %s)", e.Op(), args[0], args[1]), nil
	}
	return "", fmt.Errorf("%w: operator %s", ErrInexpressible, e.Op())
}

func (w *writer) exprs(in []*model.Expression, s *scope) ([]string, error) {
	out := make([]string, len(in))
	for i, a := range in {
		text, err := w.expr(a, s)
		if err != nil {
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

func iff(a, b string) string {
	return fmt.Sprintf("(and (imply %s %s) (imply %s %s))", a, b, b, a)
}

func conjunction(parts []string) string {
	switch len(parts) {
	case 0:
		return "(and)"
	case 1:
		return parts[0]
	}
	return "(and " + strings.Join(parts, " ") + ")"
}

var requirementOf = map[capability.Feature]string{
	capability.FlatTyping:            ":typing",
	capability.NegativeConditions:    ":negative-preconditions",
	capability.DisjunctiveConditions: ":disjunctive-preconditions",
	capability.Equality:              ":equality",
	capability.ExistentialConditions: ":existential-preconditions",
	capability.UniversalConditions:   ":universal-preconditions",
	capability.ConditionalEffects:    ":conditional-effects",
	capability.NumericFluents:        ":fluents",
}

// requirements must run after the body is rendered.
func (w *writer) requirements() []string {
	set := map[string]bool{":strips": true}
	for _, f := range w.p.Kind().Features() {
		if r, ok := requirementOf[f]; ok {
			set[r] = true
		}
	}
	for r := range w.needs {
		set[r] = true
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (w *writer) problem() (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "(define (problem %s)\n", w.names.Problem)
	fmt.Fprintf(&b, "  (:domain %s)\n", w.names.Domain)

	if objects := w.p.Objects(); len(objects) > 0 {
		byType := make(map[string][]string)
		for _, o := range objects {
			t := w.names.types[o.Type()]
			byType[t] = append(byType[t], w.names.objects[o])
		}
		b.WriteString("  (:objects\n")
		for _, t := range sortedKeys(byType) {
			names := byType[t]
			sort.Strings(names)
			fmt.Fprintf(&b, "    %s - %s\n", strings.Join(names, " "), t)
		}
		b.WriteString("  )\n")
	}

	initial, err := w.p.InitialValues()
	if err != nil {
		return "", err
	}
	var facts []string
	s := newScope()
	for _, a := range initial {
		app, err := w.expr(a.Fluent, s)
		if err != nil {
			return "", err
		}
		switch {
		case a.Value.Op() == model.OpBool:
			if a.Value.BoolValue() {
				facts = append(facts, app)
			}
		case a.Value.Op() == model.OpInt || a.Value.Op() == model.OpReal:
			facts = append(facts, fmt.Sprintf("(= %s %s)", app, strconv.FormatFloat(a.Value.NumberValue(), 'f', -1, 64)))
		default:
			return "", fmt.Errorf("%w: initial value %s of %s", ErrInexpressible, a.Value, a.Fluent)
		}
	}
	sort.Strings(facts)
	b.WriteString("  (:init\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "    %s\n", f)
	}
	b.WriteString("  )\n")

	var goals []string
	for _, g := range w.p.Goals() {
		text, err := w.expr(g, s)
		if err != nil {
			return "", err
		}
		goals = append(goals, text)
	}
	fmt.Fprintf(&b, "  (:goal %s)\n", conjunction(goals))
	b.WriteString(")\n")
	return b.String(), nil
}

func (w *writer) sortedTypes() []*model.Type {
	types := w.p.UserTypes()
	sort.Slice(types, func(i, j int) bool { return w.names.types[types[i]] < w.names.types[types[j]] })
	return types
}

func (w *writer) sortedFluents() []*model.Fluent {
	fluents := w.p.Fluents()
	sort.Slice(fluents, func(i, j int) bool { return w.names.fluents[fluents[i]] < w.names.fluents[fluents[j]] })
	return fluents
}

func (w *writer) sortedActions() []*model.Action {
	actions := w.p.Actions()
	sort.Slice(actions, func(i, j int) bool { return w.names.actions[actions[i]] < w.names.actions[actions[j]] })
	return actions
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
