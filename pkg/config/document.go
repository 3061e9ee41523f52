package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/planforge/pkg/model"
)

// Scalar is a constant or expression written in a document. Booleans and
// numbers are accepted unquoted in every format.
type Scalar string

// UnmarshalJSON accepts strings, booleans and numbers.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		*s = Scalar(val)
	case bool:
		*s = Scalar(strconv.FormatBool(val))
	case float64:
		// Keep integers integral and reals real.
		*s = Scalar(string(data))
	case nil:
		*s = ""
	default:
		return fmt.Errorf("expected a scalar, got %T", v)
	}
	return nil
}

// UnmarshalYAML accepts any scalar node.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// ProblemDocument is the serialized form of a planning problem.
type ProblemDocument struct {
	Name    string       `json:"name" yaml:"name" validate:"required"`
	Types   []TypeDecl   `json:"types,omitempty" yaml:"types,omitempty" validate:"dive"`
	Fluents []FluentDecl `json:"fluents,omitempty" yaml:"fluents,omitempty" validate:"dive"`
	Objects []ObjectDecl `json:"objects,omitempty" yaml:"objects,omitempty" validate:"dive"`
	Actions []ActionDecl `json:"actions,omitempty" yaml:"actions,omitempty" validate:"dive"`
	Init    []InitDecl   `json:"init,omitempty" yaml:"init,omitempty" validate:"dive"`
	Goals   []string     `json:"goals,omitempty" yaml:"goals,omitempty" validate:"dive,required"`
}

// TypeDecl declares a user type.
type TypeDecl struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// ParamDecl declares a typed parameter of a fluent or action.
type ParamDecl struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Type string `json:"type" yaml:"type" validate:"required"`
}

// FluentDecl declares a fluent and its optional default initial value.
type FluentDecl struct {
	Name    string      `json:"name" yaml:"name" validate:"required"`
	Type    string      `json:"type" yaml:"type" validate:"required"`
	Params  []ParamDecl `json:"params,omitempty" yaml:"params,omitempty" validate:"dive"`
	Default *Scalar     `json:"default,omitempty" yaml:"default,omitempty"`
}

// ObjectDecl declares an object.
type ObjectDecl struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Type string `json:"type" yaml:"type" validate:"required"`
}

// ActionDecl declares an action schema.
type ActionDecl struct {
	Name          string       `json:"name" yaml:"name" validate:"required"`
	Params        []ParamDecl  `json:"params,omitempty" yaml:"params,omitempty" validate:"dive"`
	Preconditions []string     `json:"preconditions,omitempty" yaml:"preconditions,omitempty" validate:"dive,required"`
	Effects       []EffectDecl `json:"effects,omitempty" yaml:"effects,omitempty" validate:"dive"`
}

// EffectDecl declares an effect. Kind defaults to assign.
type EffectDecl struct {
	Fluent    string `json:"fluent" yaml:"fluent" validate:"required"`
	Value     Scalar `json:"value" yaml:"value" validate:"required"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Kind      string `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=assign increase decrease"`
}

// InitDecl sets the initial value of a ground fluent application.
type InitDecl struct {
	Fluent string `json:"fluent" yaml:"fluent" validate:"required"`
	Value  Scalar `json:"value" yaml:"value" validate:"required"`
}

// Build constructs and validates the problem described by the document.
func (d *ProblemDocument) Build() (*model.Problem, error) {
	p := model.NewProblem(d.Name)

	if err := d.buildTypes(p); err != nil {
		return nil, err
	}

	for i, fd := range d.Fluents {
		if err := buildFluent(p, fd); err != nil {
			return nil, fmt.Errorf("fluents[%d] (%s): %w", i, fd.Name, err)
		}
	}

	for i, od := range d.Objects {
		t, ok := p.UserTypeByName(od.Type)
		if !ok {
			return nil, fmt.Errorf("objects[%d] (%s): unknown type %q", i, od.Name, od.Type)
		}
		if err := p.AddObject(model.NewObject(od.Name, t)); err != nil {
			return nil, fmt.Errorf("objects[%d]: %w", i, err)
		}
	}

	for i, ad := range d.Actions {
		a, err := buildAction(p, ad)
		if err != nil {
			return nil, fmt.Errorf("actions[%d] (%s): %w", i, ad.Name, err)
		}
		if err := p.AddAction(a); err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
	}

	for i, init := range d.Init {
		app, err := ParseExpression(p, init.Fluent)
		if err != nil {
			return nil, fmt.Errorf("init[%d]: %w", i, err)
		}
		v, err := ParseExpression(p, string(init.Value))
		if err != nil {
			return nil, fmt.Errorf("init[%d] value: %w", i, err)
		}
		if err := p.SetInitialValue(app, v); err != nil {
			return nil, fmt.Errorf("init[%d]: %w", i, err)
		}
	}

	for i, src := range d.Goals {
		g, err := ParseExpression(p, src)
		if err != nil {
			return nil, fmt.Errorf("goals[%d]: %w", i, err)
		}
		if err := p.AddGoal(g); err != nil {
			return nil, fmt.Errorf("goals[%d]: %w", i, err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// buildTypes declares user types in any order, parents first.
func (d *ProblemDocument) buildTypes(p *model.Problem) error {
	decls := make(map[string]TypeDecl, len(d.Types))
	for _, td := range d.Types {
		if _, dup := decls[td.Name]; dup {
			return fmt.Errorf("type %q declared twice", td.Name)
		}
		decls[td.Name] = td
	}

	built := make(map[string]*model.Type, len(d.Types))
	visiting := make(map[string]bool)
	var resolve func(name string) (*model.Type, error)
	resolve = func(name string) (*model.Type, error) {
		if t, ok := built[name]; ok {
			return t, nil
		}
		td, ok := decls[name]
		if !ok {
			return nil, fmt.Errorf("unknown type %q", name)
		}
		if visiting[name] {
			return nil, fmt.Errorf("type %q is its own ancestor", name)
		}
		visiting[name] = true
		var parent *model.Type
		if td.Parent != "" {
			var err error
			if parent, err = resolve(td.Parent); err != nil {
				return nil, err
			}
		}
		t := model.UserType(name, parent)
		built[name] = t
		return t, nil
	}

	for _, td := range d.Types {
		t, err := resolve(td.Name)
		if err != nil {
			return err
		}
		if err := p.AddType(t); err != nil {
			return err
		}
	}
	return nil
}

func buildParams(p *model.Problem, decls []ParamDecl) ([]*model.Parameter, error) {
	params := make([]*model.Parameter, len(decls))
	seen := make(map[string]bool, len(decls))
	for i, pd := range decls {
		if seen[pd.Name] {
			return nil, fmt.Errorf("parameter %q declared twice", pd.Name)
		}
		seen[pd.Name] = true
		t, ok := p.UserTypeByName(pd.Type)
		if !ok {
			return nil, fmt.Errorf("parameter %s: unknown user type %q", pd.Name, pd.Type)
		}
		params[i] = model.NewParameter(pd.Name, t)
	}
	return params, nil
}

func buildFluent(p *model.Problem, fd FluentDecl) error {
	t, err := ParseType(p, fd.Type)
	if err != nil {
		return err
	}
	params, err := buildParams(p, fd.Params)
	if err != nil {
		return err
	}
	f := model.NewFluent(fd.Name, t, params...)

	var def model.Term
	if fd.Default != nil {
		e, err := ParseExpression(p, string(*fd.Default))
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		def = e
	}
	return p.AddFluent(f, def)
}

func buildAction(p *model.Problem, ad ActionDecl) (*model.Action, error) {
	params, err := buildParams(p, ad.Params)
	if err != nil {
		return nil, err
	}
	a := model.NewAction(ad.Name, params...)

	for i, src := range ad.Preconditions {
		c, err := ParseExpression(p, src, params...)
		if err != nil {
			return nil, fmt.Errorf("preconditions[%d]: %w", i, err)
		}
		a.AddPrecondition(c)
	}

	for i, ed := range ad.Effects {
		fluent, err := ParseExpression(p, ed.Fluent, params...)
		if err != nil {
			return nil, fmt.Errorf("effects[%d] fluent: %w", i, err)
		}
		value, err := ParseExpression(p, string(ed.Value), params...)
		if err != nil {
			return nil, fmt.Errorf("effects[%d] value: %w", i, err)
		}
		var cond model.Term
		if ed.Condition != "" {
			c, err := ParseExpression(p, ed.Condition, params...)
			if err != nil {
				return nil, fmt.Errorf("effects[%d] condition: %w", i, err)
			}
			cond = c
		}
		kind, err := parseEffectKind(ed.Kind)
		if err != nil {
			return nil, fmt.Errorf("effects[%d]: %w", i, err)
		}
		a.AddEffects(model.NewEffect(kind, fluent, value, cond))
	}
	return a, nil
}

func parseEffectKind(s string) (model.EffectKind, error) {
	switch s {
	case "", "assign":
		return model.AssignEffect, nil
	case "increase":
		return model.IncreaseEffect, nil
	case "decrease":
		return model.DecreaseEffect, nil
	}
	return 0, fmt.Errorf("unknown effect kind %q", s)
}

// FromProblem renders p as a document. Types, fluents, objects and actions
// are sorted by name and initial values by fluent application, so equal
// problems render identically. Goals, preconditions and effects keep their
// order.
func FromProblem(p *model.Problem) *ProblemDocument {
	d := &ProblemDocument{Name: p.Name()}

	for _, t := range p.UserTypes() {
		td := TypeDecl{Name: t.Name()}
		if t.Parent() != nil {
			td.Parent = t.Parent().Name()
		}
		d.Types = append(d.Types, td)
	}
	sort.Slice(d.Types, func(i, j int) bool { return d.Types[i].Name < d.Types[j].Name })

	for _, f := range p.Fluents() {
		fd := FluentDecl{Name: f.Name(), Type: FormatType(f.Type()), Params: paramDecls(f.Signature())}
		if def := p.FluentDefault(f); def != nil {
			s := Scalar(FormatExpression(def))
			fd.Default = &s
		}
		d.Fluents = append(d.Fluents, fd)
	}
	sort.Slice(d.Fluents, func(i, j int) bool { return d.Fluents[i].Name < d.Fluents[j].Name })

	for _, o := range p.Objects() {
		d.Objects = append(d.Objects, ObjectDecl{Name: o.Name(), Type: o.Type().Name()})
	}
	sort.Slice(d.Objects, func(i, j int) bool { return d.Objects[i].Name < d.Objects[j].Name })

	for _, a := range p.Actions() {
		ad := ActionDecl{Name: a.Name(), Params: paramDecls(a.Parameters())}
		for _, c := range a.Preconditions() {
			ad.Preconditions = append(ad.Preconditions, FormatExpression(c))
		}
		for _, e := range a.Effects() {
			ed := EffectDecl{
				Fluent: FormatExpression(e.Fluent()),
				Value:  Scalar(FormatExpression(e.Value())),
			}
			if e.Kind() != model.AssignEffect {
				ed.Kind = e.Kind().String()
			}
			if e.IsConditional() {
				ed.Condition = FormatExpression(e.Condition())
			}
			ad.Effects = append(ad.Effects, ed)
		}
		d.Actions = append(d.Actions, ad)
	}
	sort.Slice(d.Actions, func(i, j int) bool { return d.Actions[i].Name < d.Actions[j].Name })

	for _, iv := range p.ExplicitInitialValues() {
		d.Init = append(d.Init, InitDecl{
			Fluent: FormatExpression(iv.Fluent),
			Value:  Scalar(FormatExpression(iv.Value)),
		})
	}
	sort.Slice(d.Init, func(i, j int) bool { return d.Init[i].Fluent < d.Init[j].Fluent })

	for _, g := range p.Goals() {
		d.Goals = append(d.Goals, FormatExpression(g))
	}
	return d
}

func paramDecls(params []*model.Parameter) []ParamDecl {
	var out []ParamDecl
	for _, param := range params {
		out = append(out, ParamDecl{Name: param.Name(), Type: param.Type().Name()})
	}
	return out
}

// PlanDocument is the serialized form of a sequential plan.
type PlanDocument struct {
	Actions []PlanStepDecl `json:"actions" yaml:"actions" validate:"dive"`
}

// PlanStepDecl is one action instance of a plan document.
type PlanStepDecl struct {
	Action string   `json:"action" yaml:"action" validate:"required"`
	Params []string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Build resolves the plan against the actions and objects of p.
func (d *PlanDocument) Build(p *model.Problem) (*model.SequentialPlan, error) {
	steps := make([]*model.ActionInstance, 0, len(d.Actions))
	for i, step := range d.Actions {
		ai, err := resolveStep(p, step.Action, step.Params)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		steps = append(steps, ai)
	}
	return model.NewSequentialPlan(steps...), nil
}

func resolveStep(p *model.Problem, action string, params []string) (*model.ActionInstance, error) {
	a, ok := p.ActionByName(action)
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	objs := make([]*model.Object, len(params))
	for i, name := range params {
		o, ok := p.ObjectByName(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown object %q", action, name)
		}
		objs[i] = o
	}
	return model.NewActionInstance(a, objs...)
}

// PlanDocumentFrom renders a plan as a document.
func PlanDocumentFrom(plan *model.SequentialPlan) *PlanDocument {
	d := &PlanDocument{Actions: []PlanStepDecl{}}
	for _, ai := range plan.Actions() {
		step := PlanStepDecl{Action: ai.Action().Name()}
		for _, o := range ai.Parameters() {
			step.Params = append(step.Params, o.Name())
		}
		d.Actions = append(d.Actions, step)
	}
	return d
}
