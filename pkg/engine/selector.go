package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// Request describes which engines to use. With Names set, engines are looked
// up explicitly and several names form a parallel race; otherwise the
// highest-priority engine whose declared capabilities cover Kind is chosen.
type Request struct {
	// Names are explicit engine names. Duplicates are allowed.
	Names []string

	// Params holds per-name parameters aligned with Names. For kind-based
	// selection Params[0], if present, configures the chosen engine.
	Params []Params

	// Kind is the required problem kind for kind-based selection.
	Kind capability.Kind

	// CompilationKind is required when acquiring a compiler.
	CompilationKind CompilationKind
}

// ByName requests a single engine by name.
func ByName(name string, params Params) Request {
	return Request{Names: []string{name}, Params: []Params{params}}
}

// ByKind requests the preferred engine able to handle kind.
func ByKind(kind capability.Kind) Request {
	return Request{Kind: kind}
}

// Parallel requests a race between the named engines.
func Parallel(names []string, params ...Params) Request {
	return Request{Names: names, Params: params}
}

func (r Request) paramsAt(i int) Params {
	if i < len(r.Params) && r.Params[i] != nil {
		return r.Params[i]
	}
	return Params{}
}

// Options configures a Selector.
type Options struct {
	// Telemetry receives logs, metrics, spans and events. Nil disables them.
	Telemetry *telemetry.Telemetry

	// Recorder, if set, receives a record of every invocation.
	Recorder RunRecorder

	// Policy, if set, can deny candidates during selection.
	Policy AdmissionPolicy
}

// Selector picks engines from a Registry and hands out instrumented,
// scoped instances.
type Selector struct {
	registry *Registry
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	recorder RunRecorder
	policy   AdmissionPolicy
}

// NewSelector creates a selector over registry.
func NewSelector(registry *Registry, opts Options) *Selector {
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Selector{
		registry: registry,
		tel:      tel,
		logger:   tel.Logger.NewComponentLogger("selector"),
		recorder: opts.Recorder,
		policy:   opts.Policy,
	}
}

// Registry returns the registry the selector picks from.
func (s *Selector) Registry() *Registry { return s.registry }

// selection is a chosen registration with its effective parameters.
type selection struct {
	reg    *Registration
	params Params
}

// Select resolves req for mode into registrations.
func (s *Selector) Select(ctx context.Context, mode OperationMode, req Request) ([]*Registration, error) {
	sel, err := s.selectEngines(ctx, mode, req)
	if err != nil {
		return nil, err
	}
	out := make([]*Registration, len(sel))
	for i, c := range sel {
		out[i] = c.reg
	}
	return out, nil
}

func (s *Selector) selectEngines(ctx context.Context, mode OperationMode, req Request) ([]selection, error) {
	ctx, span := s.tel.Tracer.StartSelectionSpan(ctx, string(mode))
	defer span.End()

	var (
		out []selection
		err error
	)
	if len(req.Names) > 0 {
		out, err = s.selectByName(ctx, mode, req)
	} else {
		out, err = s.selectByKind(ctx, mode, req)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		reason := CodeOf(err)
		s.tel.Metrics.RecordSelectionFailure(string(mode), reason)
		_ = s.tel.Events.PublishSelectionFailed(string(mode), err.Error())
		s.logger.WithError(err).Warnf("engine selection for %s failed", mode)
		return nil, err
	}
	names := make([]string, len(out))
	for i, c := range out {
		names[i] = c.reg.Name
	}
	span.SetAttributes(telemetry.AttrEngineName.String(strings.Join(names, ",")))
	telemetry.RecordSuccess(span)
	s.logger.Debugf("selected %s for %s", strings.Join(names, ", "), mode)
	return out, nil
}

func (s *Selector) selectByName(ctx context.Context, mode OperationMode, req Request) ([]selection, error) {
	out := make([]selection, 0, len(req.Names))
	for i, name := range req.Names {
		reg, err := s.registry.Get(name)
		if err != nil {
			return nil, err
		}
		if !reg.ProvidesMode(mode) {
			return nil, &NoSuitableEngineError{
				Mode:     mode,
				Kind:     req.Kind,
				Reason:   fmt.Sprintf("engine %s does not provide %s", name, mode),
				Rejected: map[string]string{name: "mode not provided"},
			}
		}
		if mode == ModeCompiler && req.CompilationKind != "" && !reg.SupportsCompilation(req.CompilationKind) {
			return nil, &NoSuitableEngineError{
				Mode:     mode,
				Kind:     req.Kind,
				Reason:   fmt.Sprintf("engine %s does not implement %s", name, req.CompilationKind),
				Rejected: map[string]string{name: "compilation kind not implemented"},
			}
		}
		params := reg.Params.Merge(req.paramsAt(i))
		denials, err := s.admit(ctx, reg, mode, req.Kind, params, true)
		if err != nil {
			return nil, err
		}
		if len(denials) > 0 {
			reason := strings.Join(denials, "; ")
			return nil, &NoSuitableEngineError{
				Mode:     mode,
				Kind:     req.Kind,
				Reason:   fmt.Sprintf("engine %s denied by policy: %s", name, reason),
				Rejected: map[string]string{name: reason},
			}
		}
		out = append(out, selection{reg: reg, params: params})
	}
	return out, nil
}

func (s *Selector) selectByKind(ctx context.Context, mode OperationMode, req Request) ([]selection, error) {
	rejected := make(map[string]string)
	for _, reg := range s.registry.Candidates() {
		if !reg.ProvidesMode(mode) {
			continue
		}
		if !reg.Supports(req.Kind, mode) {
			rejected[reg.Name] = "missing " + featureList(reg.Missing(req.Kind, mode))
			continue
		}
		if mode == ModeCompiler && req.CompilationKind != "" && !reg.SupportsCompilation(req.CompilationKind) {
			rejected[reg.Name] = fmt.Sprintf("does not implement %s", req.CompilationKind)
			continue
		}
		params := reg.Params.Merge(req.paramsAt(0))
		denials, err := s.admit(ctx, reg, mode, req.Kind, params, false)
		if err != nil {
			return nil, err
		}
		if len(denials) > 0 {
			rejected[reg.Name] = "denied by policy: " + strings.Join(denials, "; ")
			continue
		}
		return []selection{{reg: reg, params: params}}, nil
	}

	reason := "no engine provides this mode"
	if len(rejected) > 0 {
		names := make([]string, 0, len(rejected))
		for name := range rejected {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + ": " + rejected[name]
		}
		reason = strings.Join(parts, "; ")
	}
	return nil, &NoSuitableEngineError{Mode: mode, Kind: req.Kind, Reason: reason, Rejected: rejected}
}

func (s *Selector) admit(ctx context.Context, reg *Registration, mode OperationMode, kind capability.Kind, params Params, explicit bool) ([]string, error) {
	if s.policy == nil {
		return nil, nil
	}
	denials, err := s.policy.Admit(ctx, AdmissionInput{
		Engine:   reg.Name,
		Priority: reg.Priority,
		Source:   reg.Source,
		Mode:     mode,
		Kind:     kind,
		Explicit: explicit,
		Params:   params,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating selection policy for %s: %w", reg.Name, err)
	}
	return denials, nil
}

// instantiate creates the selected engines, closing already created ones on failure.
func (s *Selector) instantiate(sel []selection) ([]Engine, error) {
	engines := make([]Engine, 0, len(sel))
	for _, c := range sel {
		eng, err := c.reg.Factory(c.params)
		if err != nil {
			for _, e := range engines {
				_ = e.Close()
			}
			return nil, NewInternalError(c.reg.Name, "failed to create engine", err).WithOperation("acquire")
		}
		engines = append(engines, eng)
	}
	return engines, nil
}

// AcquireSolver returns a solver for req. Several names yield a
// ParallelSolver. The caller must Close the solver.
func (s *Selector) AcquireSolver(ctx context.Context, req Request) (Solver, error) {
	sel, err := s.selectEngines(ctx, ModeOneshotPlanner, req)
	if err != nil {
		return nil, err
	}
	engines, err := s.instantiate(sel)
	if err != nil {
		return nil, err
	}

	solvers := make([]Solver, len(engines))
	for i, eng := range engines {
		inner, ok := eng.(Solver)
		if !ok {
			for _, e := range engines {
				_ = e.Close()
			}
			return nil, NewInternalError(sel[i].reg.Name, "engine does not implement solving", nil).WithOperation("acquire")
		}
		solvers[i] = s.wrapSolver(sel[i].reg, inner)
	}
	if len(solvers) == 1 {
		return solvers[0], nil
	}
	return newParallelSolver(s.tel, solvers), nil
}

// AcquireValidator returns a validator for req. The caller must Close it.
func (s *Selector) AcquireValidator(ctx context.Context, req Request) (Validator, error) {
	if len(req.Names) > 1 {
		return nil, &NoSuitableEngineError{Mode: ModePlanValidator, Kind: req.Kind, Reason: "parallel selection is only available for oneshot_planner"}
	}
	sel, err := s.selectEngines(ctx, ModePlanValidator, req)
	if err != nil {
		return nil, err
	}
	engines, err := s.instantiate(sel)
	if err != nil {
		return nil, err
	}
	inner, ok := engines[0].(Validator)
	if !ok {
		_ = engines[0].Close()
		return nil, NewInternalError(sel[0].reg.Name, "engine does not implement validation", nil).WithOperation("acquire")
	}
	return s.wrapValidator(sel[0].reg, inner), nil
}

// AcquireCompiler returns a compiler for req. The caller must Close it.
func (s *Selector) AcquireCompiler(ctx context.Context, req Request) (Compiler, error) {
	if len(req.Names) > 1 {
		return nil, &NoSuitableEngineError{Mode: ModeCompiler, Kind: req.Kind, Reason: "parallel selection is only available for oneshot_planner"}
	}
	sel, err := s.selectEngines(ctx, ModeCompiler, req)
	if err != nil {
		return nil, err
	}
	engines, err := s.instantiate(sel)
	if err != nil {
		return nil, err
	}
	inner, ok := engines[0].(Compiler)
	if !ok {
		_ = engines[0].Close()
		return nil, NewInternalError(sel[0].reg.Name, "engine does not implement compilation", nil).WithOperation("acquire")
	}
	return s.wrapCompiler(sel[0].reg, inner), nil
}

// WithSolver acquires a solver, runs fn and always closes the solver.
func (s *Selector) WithSolver(ctx context.Context, req Request, fn func(Solver) error) (err error) {
	solver, err := s.AcquireSolver(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, solver.Close())
	}()
	return fn(solver)
}

// WithValidator acquires a validator, runs fn and always closes the validator.
func (s *Selector) WithValidator(ctx context.Context, req Request, fn func(Validator) error) (err error) {
	validator, err := s.AcquireValidator(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, validator.Close())
	}()
	return fn(validator)
}

// WithCompiler acquires a compiler, runs fn and always closes the compiler.
func (s *Selector) WithCompiler(ctx context.Context, req Request, fn func(Compiler) error) (err error) {
	compiler, err := s.AcquireCompiler(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, compiler.Close())
	}()
	return fn(compiler)
}

// Solve solves p with the engines of req. Without names the engine is
// chosen by the kind of p merged with req.Kind.
func (s *Selector) Solve(ctx context.Context, p *model.Problem, req Request, opts SolveOptions) (*PlanResult, error) {
	if len(req.Names) == 0 {
		req.Kind = req.Kind.Union(p.Kind())
	}
	var result *PlanResult
	err := s.WithSolver(ctx, req, func(solver Solver) error {
		var err error
		result, err = solver.Solve(ctx, p, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Validate checks plan against p with the engine of req.
func (s *Selector) Validate(ctx context.Context, p *model.Problem, plan *model.SequentialPlan, req Request) (*ValidationResult, error) {
	if len(req.Names) == 0 {
		req.Kind = req.Kind.Union(p.Kind())
	}
	var result *ValidationResult
	err := s.WithValidator(ctx, req, func(v Validator) error {
		var err error
		result, err = v.Validate(ctx, p, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Compile transforms p with the engine of req.
func (s *Selector) Compile(ctx context.Context, p *model.Problem, kind CompilationKind, req Request) (*CompilerResult, error) {
	if len(req.Names) == 0 {
		req.Kind = req.Kind.Union(p.Kind())
	}
	req.CompilationKind = kind
	var result *CompilerResult
	err := s.WithCompiler(ctx, req, func(c Compiler) error {
		var err error
		result, err = c.Compile(ctx, p, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func featureList(features []capability.Feature) string {
	parts := make([]string, len(features))
	for i, f := range features {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
