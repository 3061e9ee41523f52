package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/model"
)

// fakeSolver runs solve for every call and records its lifecycle.
type fakeSolver struct {
	name      string
	solve     func(ctx context.Context) (*PlanResult, error)
	closed    atomic.Int32
	cancelled atomic.Bool
	params    Params
}

func (f *fakeSolver) Name() string { return f.name }

func (f *fakeSolver) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeSolver) Solve(ctx context.Context, p *model.Problem, opts SolveOptions) (*PlanResult, error) {
	return f.solve(ctx)
}

// blockUntilCancelled waits for ctx and marks the solver cancelled.
func (f *fakeSolver) blockUntilCancelled(ctx context.Context) (*PlanResult, error) {
	<-ctx.Done()
	f.cancelled.Store(true)
	return nil, ctx.Err()
}

func solved(engine string) *PlanResult {
	return &PlanResult{Status: StatusSolvedSatisficing, Engine: engine, Plan: model.NewSequentialPlan()}
}

// fakeFleet keeps the instances created by the factories of a test registry.
type fakeFleet struct {
	mu        sync.Mutex
	instances map[string][]*fakeSolver
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{instances: make(map[string][]*fakeSolver)}
}

func (fl *fakeFleet) register(t testing.TB, reg *Registry, name string, priority int, kind capability.Kind, solve func(f *fakeSolver, ctx context.Context) (*PlanResult, error)) {
	err := reg.Register(Registration{
		Name:     name,
		Priority: priority,
		Modes:    map[OperationMode]capability.Kind{ModeOneshotPlanner: kind},
		Factory: func(params Params) (Engine, error) {
			f := &fakeSolver{name: name, params: params}
			f.solve = func(ctx context.Context) (*PlanResult, error) { return solve(f, ctx) }
			fl.mu.Lock()
			fl.instances[name] = append(fl.instances[name], f)
			fl.mu.Unlock()
			return f, nil
		},
		Source: "test",
	})
	if err != nil {
		t.Fatalf("failed to register %s: %v", name, err)
	}
}

func (fl *fakeFleet) get(name string) []*fakeSolver {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return append([]*fakeSolver(nil), fl.instances[name]...)
}

// fakeValidator reports a fixed result.
type fakeValidator struct {
	name     string
	validate func(ctx context.Context) (*ValidationResult, error)
	closed   atomic.Int32
}

func (f *fakeValidator) Name() string { return f.name }

func (f *fakeValidator) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeValidator) Validate(ctx context.Context, p *model.Problem, plan *model.SequentialPlan) (*ValidationResult, error) {
	return f.validate(ctx)
}

// recorder collects run records.
type recorder struct {
	mu   sync.Mutex
	runs []*RunRecord
}

func (r *recorder) RecordRun(ctx context.Context, run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

// denyPolicy denies the listed engines.
type denyPolicy map[string]string

func (d denyPolicy) Admit(ctx context.Context, in AdmissionInput) ([]string, error) {
	if reason, ok := d[in.Engine]; ok {
		return []string{reason}, nil
	}
	return nil, nil
}
