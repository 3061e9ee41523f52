package pddl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/planforge/pkg/model"
)

// Names maps model entities to PDDL identifiers and back. Identifiers are
// lower case, so lookups are case-insensitive.
type Names struct {
	Domain  string
	Problem string

	types   map[*model.Type]string
	fluents map[*model.Fluent]string

	actions   map[*model.Action]string
	actionsBy map[string]*model.Action

	objects   map[*model.Object]string
	objectsBy map[string]*model.Object
}

// Action returns the action written as name.
func (n *Names) Action(name string) (*model.Action, bool) {
	a, ok := n.actionsBy[strings.ToLower(name)]
	return a, ok
}

// Object returns the object written as name.
func (n *Names) Object(name string) (*model.Object, bool) {
	o, ok := n.objectsBy[strings.ToLower(name)]
	return o, ok
}

// ActionName returns the identifier of a.
func (n *Names) ActionName(a *model.Action) string { return n.actions[a] }

// ObjectName returns the identifier of o.
func (n *Names) ObjectName(o *model.Object) string { return n.objects[o] }

// assignNames sanitizes every name in p. Within a namespace, entities are
// visited in order of their original names and a clash gets a numeric
// suffix, so the result depends only on the problem.
func assignNames(p *model.Problem) *Names {
	n := &Names{
		types:     make(map[*model.Type]string),
		fluents:   make(map[*model.Fluent]string),
		actions:   make(map[*model.Action]string),
		actionsBy: make(map[string]*model.Action),
		objects:   make(map[*model.Object]string),
		objectsBy: make(map[string]*model.Object),
	}

	name := p.Name()
	if name == "" {
		name = "problem"
	}
	n.Domain = identifier(name)
	n.Problem = n.Domain + "-problem"

	types := newNamespace()
	for _, t := range byName(p.UserTypes(), (*model.Type).Name) {
		n.types[t] = types.assign(t.Name())
	}

	fluents := newNamespace()
	for _, f := range byName(p.Fluents(), (*model.Fluent).Name) {
		n.fluents[f] = fluents.assign(f.Name())
	}

	actions := newNamespace()
	for _, a := range byName(p.Actions(), (*model.Action).Name) {
		id := actions.assign(a.Name())
		n.actions[a] = id
		n.actionsBy[id] = a
	}

	objects := newNamespace()
	for _, o := range byName(p.Objects(), (*model.Object).Name) {
		id := objects.assign(o.Name())
		n.objects[o] = id
		n.objectsBy[id] = o
	}

	return n
}

func byName[T any](items []T, name func(T) string) []T {
	sort.SliceStable(items, func(i, j int) bool { return name(items[i]) < name(items[j]) })
	return items
}

type namespace struct {
	used map[string]bool
}

func newNamespace() *namespace {
	return &namespace{used: make(map[string]bool)}
}

func (ns *namespace) assign(original string) string {
	base := identifier(original)
	name := base
	for i := 2; ns.used[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	ns.used[name] = true
	return name
}

var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "imply": true, "exists": true, "forall": true,
	"when": true, "either": true, "object": true, "number": true, "define": true,
	"domain": true, "problem": true, "assign": true, "increase": true, "decrease": true,
	"scale-up": true, "scale-down": true,
}

// identifier turns s into a PDDL name: a letter followed by letters,
// digits, hyphens and underscores.
func identifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	id := b.String()
	if id == "" || id[0] < 'a' || id[0] > 'z' {
		id = "x" + id
	}
	if reserved[id] {
		id += "_"
	}
	return id
}
