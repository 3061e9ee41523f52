package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfroyo/planforge/pkg/capability"
)

// InitialAssignment is the initial value of a ground fluent application.
type InitialAssignment struct {
	// Fluent is the ground fluent application.
	Fluent *Expression

	// Value is the constant value.
	Value *Expression
}

// Problem is an engine-agnostic planning problem. A Problem must not be
// mutated while an engine works on it.
type Problem struct {
	name string

	types      []*Type
	typeByName map[string]*Type

	fluents      []*Fluent
	fluentByName map[string]*Fluent
	defaults     map[*Fluent]*Expression

	objects      []*Object
	objectByName map[string]*Object

	actions      []*Action
	actionByName map[string]*Action

	initial      map[string]InitialAssignment
	initialOrder []string

	goals []*Expression

	rev uint64

	kindMu    sync.Mutex
	kindCache capability.Kind
	kindRev   uint64
	kindValid bool
}

// NewProblem creates an empty problem.
func NewProblem(name string) *Problem {
	return &Problem{
		name:         name,
		typeByName:   make(map[string]*Type),
		fluentByName: make(map[string]*Fluent),
		defaults:     make(map[*Fluent]*Expression),
		objectByName: make(map[string]*Object),
		actionByName: make(map[string]*Action),
		initial:      make(map[string]InitialAssignment),
	}
}

// Name returns the problem name.
func (p *Problem) Name() string { return p.name }

// AddType registers a user type and its ancestors.
func (p *Problem) AddType(t *Type) error {
	if !t.IsUser() {
		return fmt.Errorf("type %s is not a user type", t)
	}
	chain := t.Ancestors()
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		if existing, ok := p.typeByName[cur.name]; ok {
			if existing != cur {
				return fmt.Errorf("type %q already declared with a different definition", cur.name)
			}
			continue
		}
		p.typeByName[cur.name] = cur
		p.types = append(p.types, cur)
		p.rev++
	}
	return nil
}

func (p *Problem) addTypeOf(t *Type) error {
	if t.IsUser() {
		return p.AddType(t)
	}
	return nil
}

// UserTypes returns the registered user types, parents before children.
func (p *Problem) UserTypes() []*Type {
	return append([]*Type(nil), p.types...)
}

// UserTypeByName looks up a registered user type.
func (p *Problem) UserTypeByName(name string) (*Type, bool) {
	t, ok := p.typeByName[name]
	return t, ok
}

// AddFluent registers a fluent. defaultValue may be nil.
func (p *Problem) AddFluent(f *Fluent, defaultValue Term) error {
	if existing, ok := p.fluentByName[f.name]; ok && existing != f {
		return fmt.Errorf("fluent %q already declared", f.name)
	} else if ok {
		return nil
	}
	if err := p.addTypeOf(f.typ); err != nil {
		return err
	}
	for _, param := range f.params {
		if !param.typ.IsUser() {
			return fmt.Errorf("fluent %q: parameter %q must have a user type", f.name, param.name)
		}
		if err := p.addTypeOf(param.typ); err != nil {
			return err
		}
	}
	if defaultValue != nil {
		def := defaultValue.Expr()
		if def != nil {
			if err := checkConstantFor(f.typ, def); err != nil {
				return fmt.Errorf("fluent %q default: %w", f.name, err)
			}
			p.defaults[f] = def
		}
	}
	p.fluentByName[f.name] = f
	p.fluents = append(p.fluents, f)
	p.rev++
	return nil
}

// Fluents returns the registered fluents in declaration order.
func (p *Problem) Fluents() []*Fluent {
	return append([]*Fluent(nil), p.fluents...)
}

// FluentByName looks up a registered fluent.
func (p *Problem) FluentByName(name string) (*Fluent, bool) {
	f, ok := p.fluentByName[name]
	return f, ok
}

// FluentDefault returns the default initial value of f, or nil.
func (p *Problem) FluentDefault(f *Fluent) *Expression {
	return p.defaults[f]
}

// AddObject registers an object.
func (p *Problem) AddObject(o *Object) error {
	if !o.typ.IsUser() {
		return fmt.Errorf("object %q must have a user type, got %s", o.name, o.typ)
	}
	if existing, ok := p.objectByName[o.name]; ok {
		if existing == o {
			return nil
		}
		return fmt.Errorf("object %q already declared", o.name)
	}
	if err := p.AddType(o.typ); err != nil {
		return err
	}
	p.objectByName[o.name] = o
	p.objects = append(p.objects, o)
	p.rev++
	return nil
}

// AddObjects registers several objects.
func (p *Problem) AddObjects(objects ...*Object) error {
	for _, o := range objects {
		if err := p.AddObject(o); err != nil {
			return err
		}
	}
	return nil
}

// Objects returns the registered objects in declaration order.
func (p *Problem) Objects() []*Object {
	return append([]*Object(nil), p.objects...)
}

// ObjectByName looks up a registered object.
func (p *Problem) ObjectByName(name string) (*Object, bool) {
	o, ok := p.objectByName[name]
	return o, ok
}

// ObjectsOfType returns the objects of t and its subtypes in declaration order.
func (p *Problem) ObjectsOfType(t *Type) []*Object {
	var out []*Object
	for _, o := range p.objects {
		if o.typ.IsSubtypeOf(t) {
			out = append(out, o)
		}
	}
	return out
}

// AddAction registers an action. The action may still be extended afterwards.
func (p *Problem) AddAction(a *Action) error {
	if existing, ok := p.actionByName[a.name]; ok {
		if existing == a {
			return nil
		}
		return fmt.Errorf("action %q already declared", a.name)
	}
	for _, param := range a.params {
		if !param.typ.IsUser() {
			return fmt.Errorf("action %q: parameter %q must have a user type", a.name, param.name)
		}
		if err := p.AddType(param.typ); err != nil {
			return err
		}
	}
	p.actionByName[a.name] = a
	p.actions = append(p.actions, a)
	p.rev++
	return nil
}

// Actions returns the registered actions in declaration order.
func (p *Problem) Actions() []*Action {
	return append([]*Action(nil), p.actions...)
}

// ActionByName looks up a registered action.
func (p *Problem) ActionByName(name string) (*Action, bool) {
	a, ok := p.actionByName[name]
	return a, ok
}

// SetInitialValue overrides the initial value of a ground fluent application.
func (p *Problem) SetInitialValue(fluent Term, value Term) error {
	app := fluent.Expr()
	args, err := groundArgs(app)
	if err != nil {
		return err
	}
	if err := checkArgs(app.fluent, args); err != nil {
		return err
	}
	v := value.Expr()
	if err := checkConstantFor(app.fluent.typ, v); err != nil {
		return fmt.Errorf("initial value of %s: %w", app, err)
	}
	key := GroundKey(app.fluent, args)
	if _, ok := p.initial[key]; !ok {
		p.initialOrder = append(p.initialOrder, key)
	}
	p.initial[key] = InitialAssignment{Fluent: app, Value: v}
	p.rev++
	return nil
}

// InitialValue returns the explicit or default initial value of a ground
// fluent application.
func (p *Problem) InitialValue(fluent Term) (*Expression, error) {
	app := fluent.Expr()
	args, err := groundArgs(app)
	if err != nil {
		return nil, err
	}
	if a, ok := p.initial[GroundKey(app.fluent, args)]; ok {
		return a.Value, nil
	}
	if def, ok := p.defaults[app.fluent]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("no initial value for %s", app)
}

// ExplicitInitialValues returns the explicitly set initial values in insertion order.
func (p *Problem) ExplicitInitialValues() []InitialAssignment {
	out := make([]InitialAssignment, 0, len(p.initialOrder))
	for _, k := range p.initialOrder {
		out = append(out, p.initial[k])
	}
	return out
}

// InitialValues enumerates the initial value of every ground fluent
// application, explicit values first overriding defaults. Order follows
// fluent declaration order, then object tuples in declaration order.
func (p *Problem) InitialValues() ([]InitialAssignment, error) {
	var out []InitialAssignment
	for _, f := range p.fluents {
		domains := make([][]*Object, len(f.params))
		for i, param := range f.params {
			domains[i] = p.ObjectsOfType(param.typ)
		}
		var missing error
		ForEachTuple(domains, func(tuple []*Object) bool {
			key := GroundKey(f, tuple)
			if a, ok := p.initial[key]; ok {
				out = append(out, a)
				return true
			}
			def, ok := p.defaults[f]
			if !ok {
				missing = fmt.Errorf("no initial value for %s", key)
				return false
			}
			args := make([]Term, len(tuple))
			for i, o := range tuple {
				args[i] = o
			}
			out = append(out, InitialAssignment{Fluent: f.Of(args...), Value: def})
			return true
		})
		if missing != nil {
			return nil, missing
		}
	}
	return out, nil
}

// AddGoal adds a boolean condition that must hold at the end of the plan.
func (p *Problem) AddGoal(goal Term) error {
	g := goal.Expr()
	if !g.Type().IsBool() {
		return fmt.Errorf("goal %s is not boolean", g)
	}
	p.goals = append(p.goals, g)
	p.rev++
	return nil
}

// Goals returns a copy of the goals.
func (p *Problem) Goals() []*Expression {
	return append([]*Expression(nil), p.goals...)
}

// Clone returns an independent copy. Actions are copied; fluents, objects,
// types and expressions are shared.
func (p *Problem) Clone() *Problem {
	return p.cloneWith(p.name, true)
}

// CloneWithoutActions returns a copy holding everything but the actions.
func (p *Problem) CloneWithoutActions(name string) *Problem {
	return p.cloneWith(name, false)
}

func (p *Problem) cloneWith(name string, withActions bool) *Problem {
	out := NewProblem(name)
	out.types = append(out.types, p.types...)
	for k, v := range p.typeByName {
		out.typeByName[k] = v
	}
	out.fluents = append(out.fluents, p.fluents...)
	for k, v := range p.fluentByName {
		out.fluentByName[k] = v
	}
	for k, v := range p.defaults {
		out.defaults[k] = v
	}
	out.objects = append(out.objects, p.objects...)
	for k, v := range p.objectByName {
		out.objectByName[k] = v
	}
	if withActions {
		for _, a := range p.actions {
			c := a.Clone()
			out.actions = append(out.actions, c)
			out.actionByName[c.name] = c
		}
	}
	for k, v := range p.initial {
		out.initial[k] = v
	}
	out.initialOrder = append(out.initialOrder, p.initialOrder...)
	out.goals = append(out.goals, p.goals...)
	return out
}

// revision changes whenever the problem or one of its actions is mutated.
// Every counter only grows, so equal sums mean no mutation happened.
func (p *Problem) revision() uint64 {
	r := p.rev
	for _, a := range p.actions {
		r += a.rev
	}
	return r
}

// Kind returns the features used by the problem. The result is cached until
// the next mutation.
func (p *Problem) Kind() capability.Kind {
	p.kindMu.Lock()
	defer p.kindMu.Unlock()

	rev := p.revision()
	if p.kindValid && p.kindRev == rev {
		return p.kindCache
	}
	p.kindCache = computeKind(p)
	p.kindRev = rev
	p.kindValid = true
	return p.kindCache
}

func (p *Problem) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "problem name = %s\n\n", p.name)
	if len(p.types) > 0 {
		sb.WriteString("types = [")
		for i, t := range p.types {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(t.name)
			if t.parent != nil {
				sb.WriteString(" - " + t.parent.name)
			}
		}
		sb.WriteString("]\n\n")
	}
	sb.WriteString("fluents = [\n")
	for _, f := range p.fluents {
		sb.WriteString("  " + f.String() + "\n")
	}
	sb.WriteString("]\n\nactions = [\n")
	for _, a := range p.actions {
		sb.WriteString("  " + a.String() + "\n")
	}
	sb.WriteString("]\n\nobjects = [\n")
	for _, t := range p.types {
		var names []string
		for _, o := range p.objects {
			if o.typ == t {
				names = append(names, o.name)
			}
		}
		fmt.Fprintf(&sb, "  %s: [%s]\n", t.name, strings.Join(names, ", "))
	}
	sb.WriteString("]\n\ninitial values = [\n")
	for _, a := range p.ExplicitInitialValues() {
		fmt.Fprintf(&sb, "  %s := %s\n", a.Fluent, a.Value)
	}
	sb.WriteString("]\n\ngoals = [\n")
	for _, g := range p.goals {
		sb.WriteString("  " + g.String() + "\n")
	}
	sb.WriteString("]\n")
	return sb.String()
}

// ForEachTuple calls fn for every combination of one element per domain, in
// lexicographic order. Iteration stops when fn returns false. A nil or empty
// domain list yields one empty tuple.
func ForEachTuple(domains [][]*Object, fn func([]*Object) bool) {
	for _, d := range domains {
		if len(d) == 0 {
			return
		}
	}
	idx := make([]int, len(domains))
	tuple := make([]*Object, len(domains))
	for {
		for i, d := range domains {
			tuple[i] = d[idx[i]]
		}
		if !fn(append([]*Object(nil), tuple...)) {
			return
		}
		i := len(domains) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(domains[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func groundArgs(app *Expression) ([]*Object, error) {
	if app == nil || app.op != OpFluent {
		return nil, fmt.Errorf("expression %v is not a fluent application", app)
	}
	args := make([]*Object, len(app.args))
	for i, a := range app.args {
		if a.op != OpObject {
			return nil, fmt.Errorf("argument %d of %s is not an object", i, app)
		}
		args[i] = a.object
	}
	return args, nil
}

func checkArgs(f *Fluent, args []*Object) error {
	if len(args) != len(f.params) {
		return fmt.Errorf("fluent %q expects %d arguments, got %d", f.name, len(f.params), len(args))
	}
	for i, o := range args {
		if !o.typ.IsSubtypeOf(f.params[i].typ) {
			return fmt.Errorf("fluent %q: argument %s has type %s, expected %s", f.name, o.name, o.typ, f.params[i].typ)
		}
	}
	return nil
}

func checkConstantFor(t *Type, v *Expression) error {
	if !v.IsConstant() {
		return fmt.Errorf("%s is not a constant", v)
	}
	if !t.Accepts(v.Type()) {
		if t.IsInt() && v.op == OpReal && v.num == float64(int64(v.num)) {
			return checkBounds(t, v.num)
		}
		return fmt.Errorf("value %s of type %s does not fit %s", v, v.Type(), t)
	}
	if t.IsNumeric() {
		return checkBounds(t, v.num)
	}
	return nil
}

func checkBounds(t *Type, n float64) error {
	if !t.InBounds(n) {
		return fmt.Errorf("value %s is outside the bounds of %s", formatNumber(n), t)
	}
	return nil
}
