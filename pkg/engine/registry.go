package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openfroyo/planforge/pkg/capability"
)

// Registration describes a known engine: the modes it provides, the largest
// problem kind it accepts in each mode and how to create it.
type Registration struct {
	// Name is the unique name of the engine.
	Name string

	// Description is a short human-readable summary.
	Description string

	// Priority orders kind-based selection; higher wins.
	Priority int

	// Modes maps each supported mode to the features the engine accepts in it.
	Modes map[OperationMode]capability.Kind

	// CompilationKinds lists the transformations of a compiler engine.
	CompilationKinds []CompilationKind

	// Params are defaults merged under the parameters of each request.
	Params Params

	// Factory creates instances.
	Factory Factory

	// Source records where the registration came from, e.g. "builtin" or a manifest path.
	Source string

	order int
}

// Supports reports whether the engine provides mode for problems of kind.
func (r *Registration) Supports(kind capability.Kind, mode OperationMode) bool {
	accepted, ok := r.Modes[mode]
	if !ok {
		return false
	}
	return kind.IsSubsetOf(accepted)
}

// ProvidesMode reports whether the engine declares mode at all.
func (r *Registration) ProvidesMode(mode OperationMode) bool {
	_, ok := r.Modes[mode]
	return ok
}

// SupportsCompilation reports whether the engine implements kind.
func (r *Registration) SupportsCompilation(kind CompilationKind) bool {
	for _, k := range r.CompilationKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Missing returns the features of kind the engine does not accept in mode.
func (r *Registration) Missing(kind capability.Kind, mode OperationMode) []capability.Feature {
	return kind.Missing(r.Modes[mode])
}

// Validate checks the registration is complete.
func (r *Registration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("engine name is required")
	}
	if r.Factory == nil {
		return fmt.Errorf("engine %s: factory is required", r.Name)
	}
	if len(r.Modes) == 0 {
		return fmt.Errorf("engine %s: at least one mode is required", r.Name)
	}
	for m := range r.Modes {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("engine %s: %w", r.Name, err)
		}
	}
	if r.ProvidesMode(ModeCompiler) && len(r.CompilationKinds) == 0 {
		return fmt.Errorf("engine %s: compiler mode requires compilation kinds", r.Name)
	}
	for _, k := range r.CompilationKinds {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("engine %s: %w", r.Name, err)
		}
	}
	return nil
}

// Registry holds engine registrations. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Registration
	seq     int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Registration),
	}
}

// Register adds an engine. Registering a name twice is an error.
func (r *Registry) Register(reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[reg.Name]; exists {
		return fmt.Errorf("engine %s is already registered", reg.Name)
	}
	r.seq++
	reg.order = r.seq
	r.entries[reg.Name] = &reg
	return nil
}

// Upsert adds or replaces an engine. A replaced engine keeps its position in
// registration order.
func (r *Registry) Upsert(reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.entries[reg.Name]; exists {
		reg.order = old.order
	} else {
		r.seq++
		reg.order = r.seq
	}
	r.entries[reg.Name] = &reg
	return nil
}

// Unregister removes an engine and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return false
	}
	delete(r.entries, name)
	return true
}

// Get returns the registration of name.
func (r *Registry) Get(name string) (*Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]
	if !ok {
		return nil, &EngineNotFoundError{Name: name, Known: r.namesLocked()}
	}
	return reg, nil
}

// List returns all registrations in registration order.
func (r *Registry) List() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Candidates returns all registrations in selection preference order:
// priority descending, then registration order.
func (r *Registry) Candidates() []*Registration {
	out := r.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) namesLocked() []string {
	regs := make([]*Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.Name
	}
	return names
}
