package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// instrumented holds what every wrapped engine shares: the runtime kind
// check, metrics, spans, events, logging and run recording.
type instrumented struct {
	reg      *Registration
	inner    Engine
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	recorder RunRecorder

	closeOnce sync.Once
	closeErr  error
}

func (s *Selector) newInstrumented(reg *Registration, inner Engine, mode OperationMode) *instrumented {
	s.tel.Metrics.EngineAcquired()
	return &instrumented{
		reg:      reg,
		inner:    inner,
		tel:      s.tel,
		logger:   s.tel.Logger.WithEngine(reg.Name, string(mode)),
		recorder: s.recorder,
	}
}

func (w *instrumented) Name() string { return w.reg.Name }

func (w *instrumented) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.inner.Close()
		w.tel.Metrics.EngineReleased()
		if w.closeErr != nil {
			w.logger.WithError(w.closeErr).Warn("engine close failed")
		}
	})
	return w.closeErr
}

// invocation tracks one call through an instrumented engine.
type invocation struct {
	w      *instrumented
	mode   OperationMode
	runID  string
	kind   capability.Kind
	name   string
	start  time.Time
	span   trace.Span
	logger *telemetry.Logger
}

func (w *instrumented) begin(ctx context.Context, mode OperationMode, p *model.Problem) (context.Context, *invocation) {
	inv := &invocation{
		w:     w,
		mode:  mode,
		runID: uuid.New().String(),
		kind:  p.Kind(),
		name:  p.Name(),
		start: time.Now(),
	}
	ctx, inv.span = w.tel.Tracer.StartEngineSpan(ctx, w.reg.Name, string(mode), p.Name())
	inv.span.SetAttributes(telemetry.AttrProblemKind.StringSlice(inv.kind.Strings()))
	inv.logger = w.logger.WithRunID(inv.runID).WithProblem(p.Name())
	inv.logger.Debug("engine invocation started")
	_ = w.tel.Events.PublishEngineStarted(inv.runID, w.reg.Name, string(mode), p.Name())
	return ctx, inv
}

// end records the outcome. status is empty when err is set.
func (inv *invocation) end(ctx context.Context, status string, plan *model.SequentialPlan, err error) {
	w := inv.w
	d := time.Since(inv.start)
	mode := string(inv.mode)

	if err != nil {
		class := ClassOf(err)
		telemetry.RecordError(inv.span, err)
		inv.span.SetAttributes(telemetry.AttrErrorClass.String(string(class)), telemetry.AttrErrorCode.String(CodeOf(err)))
		w.tel.Metrics.RecordEngineError(w.reg.Name, mode, string(class))
		_ = w.tel.Events.PublishEngineFailed(inv.runID, w.reg.Name, mode, err.Error())
		if class == ErrorClassCanceled {
			inv.logger.Debug("engine invocation cancelled")
		} else {
			inv.logger.WithError(err).Warn("engine invocation failed")
		}
	} else {
		inv.span.SetAttributes(telemetry.AttrStatus.String(status))
		if plan != nil {
			inv.span.SetAttributes(telemetry.AttrPlanLength.Int(plan.Len()))
		}
		telemetry.RecordSuccess(inv.span)
		w.tel.Metrics.RecordEngineInvocation(w.reg.Name, mode, status, d)
		_ = w.tel.Events.PublishEngineCompleted(inv.runID, w.reg.Name, mode, status, d)
		inv.logger.WithField("status", status).WithField("duration", d.String()).Info("engine invocation finished")
	}
	inv.span.End()

	if w.recorder == nil || errors.Is(err, context.Canceled) {
		return
	}
	rec := &RunRecord{
		ID:          inv.runID,
		Mode:        inv.mode,
		Engine:      w.reg.Name,
		Problem:     inv.name,
		ProblemKind: inv.kind,
		Status:      status,
		StartedAt:   inv.start,
		Duration:    d,
		Plan:        PlanSteps(plan),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// recording must not fail the invocation, and must outlive a cancelled caller
	if rerr := w.recorder.RecordRun(context.WithoutCancel(ctx), rec); rerr != nil {
		inv.logger.WithError(rerr).Warn("failed to record run")
	}
}

// deadline turns an expired context into a TimeoutError.
func (inv *invocation) deadline(err error) error {
	var te *TimeoutError
	if errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &te) {
		return &TimeoutError{Engine: inv.w.reg.Name, Timeout: time.Since(inv.start).Round(time.Millisecond)}
	}
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timedOut reports whether runCtx expired on its own deadline while the
// caller's ctx is still live.
func timedOut(ctx, runCtx context.Context) bool {
	return ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)
}

type instrumentedSolver struct {
	*instrumented
	solver Solver
}

func (s *Selector) wrapSolver(reg *Registration, inner Solver) Solver {
	return &instrumentedSolver{
		instrumented: s.newInstrumented(reg, inner, ModeOneshotPlanner),
		solver:       inner,
	}
}

// Solve runs the engine. Engine failures become statuses; only parsing
// errors and the caller's cancellation are returned as errors.
func (w *instrumentedSolver) Solve(ctx context.Context, p *model.Problem, opts SolveOptions) (*PlanResult, error) {
	ctx, inv := w.begin(ctx, ModeOneshotPlanner, p)
	start := inv.start

	finish := func(res *PlanResult) (*PlanResult, error) {
		if res.Engine == "" {
			res.Engine = w.reg.Name
		}
		res.Duration = time.Since(start)
		inv.end(ctx, string(res.Status), res.Plan, nil)
		return res, nil
	}

	if !w.reg.Supports(inv.kind, ModeOneshotPlanner) {
		res := NewPlanResult(w.reg.Name, StatusUnsupportedProblem)
		res.Log = (&UnsupportedProblemError{Engine: w.reg.Name, Missing: w.reg.Missing(inv.kind, ModeOneshotPlanner)}).Error()
		return finish(res)
	}

	runCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	res, err := w.solver.Solve(runCtx, p, opts)
	switch {
	case ctx.Err() != nil:
		inv.end(ctx, "", nil, ctx.Err())
		return nil, ctx.Err()
	case timedOut(ctx, runCtx) && (err != nil || res == nil || !res.Status.IsDefinitive()):
		out := NewPlanResult(w.reg.Name, StatusTimeout)
		if res != nil {
			out.Metrics, out.Log = res.Metrics, res.Log
		}
		return finish(out)
	case err != nil:
		if errors.Is(err, ErrResultParsing) {
			inv.end(ctx, "", nil, err)
			return nil, err
		}
		status := StatusInternalError
		if errors.Is(err, ErrUnsupportedProblem) {
			status = StatusUnsupportedProblem
		}
		out := NewPlanResult(w.reg.Name, status)
		out.Log = err.Error()
		return finish(out)
	case res == nil:
		out := NewPlanResult(w.reg.Name, StatusInternalError)
		out.Log = "engine returned no result"
		return finish(out)
	}

	if verr := res.Status.Validate(); verr != nil {
		perr := &ResultParsingError{Engine: w.reg.Name, Err: verr}
		inv.end(ctx, "", nil, perr)
		return nil, perr
	}
	if res.Status.IsSolved() && res.Plan == nil {
		perr := &ResultParsingError{Engine: w.reg.Name, Err: errors.New("solved status without plan")}
		inv.end(ctx, "", nil, perr)
		return nil, perr
	}
	return finish(res)
}

type instrumentedValidator struct {
	*instrumented
	validator Validator
}

func (s *Selector) wrapValidator(reg *Registration, inner Validator) Validator {
	return &instrumentedValidator{
		instrumented: s.newInstrumented(reg, inner, ModePlanValidator),
		validator:    inner,
	}
}

func (w *instrumentedValidator) Validate(ctx context.Context, p *model.Problem, plan *model.SequentialPlan) (*ValidationResult, error) {
	ctx, inv := w.begin(ctx, ModePlanValidator, p)

	if !w.reg.Supports(inv.kind, ModePlanValidator) {
		err := &UnsupportedProblemError{Engine: w.reg.Name, Missing: w.reg.Missing(inv.kind, ModePlanValidator)}
		inv.end(ctx, "", nil, err)
		return nil, err
	}

	res, err := w.validator.Validate(ctx, p, plan)
	if err != nil {
		err = inv.deadline(err)
		inv.end(ctx, "", nil, err)
		return nil, err
	}
	if res.Engine == "" {
		res.Engine = w.reg.Name
	}
	status := RunStatusInvalid
	if res.Valid {
		status = RunStatusValid
	}
	inv.end(ctx, status, plan, nil)
	return res, nil
}

type instrumentedCompiler struct {
	*instrumented
	compiler Compiler
}

func (s *Selector) wrapCompiler(reg *Registration, inner Compiler) Compiler {
	return &instrumentedCompiler{
		instrumented: s.newInstrumented(reg, inner, ModeCompiler),
		compiler:     inner,
	}
}

func (w *instrumentedCompiler) Compile(ctx context.Context, p *model.Problem, kind CompilationKind) (*CompilerResult, error) {
	ctx, inv := w.begin(ctx, ModeCompiler, p)

	if !w.reg.SupportsCompilation(kind) {
		err := &UnsupportedProblemError{Engine: w.reg.Name}
		inv.end(ctx, "", nil, err)
		return nil, err
	}
	if !w.reg.Supports(inv.kind, ModeCompiler) {
		err := &UnsupportedProblemError{Engine: w.reg.Name, Missing: w.reg.Missing(inv.kind, ModeCompiler)}
		inv.end(ctx, "", nil, err)
		return nil, err
	}

	res, err := w.compiler.Compile(ctx, p, kind)
	if err != nil {
		err = inv.deadline(err)
		inv.end(ctx, "", nil, err)
		return nil, err
	}
	if res.Engine == "" {
		res.Engine = w.reg.Name
	}
	if res.Kind == "" {
		res.Kind = kind
	}
	w.tel.Metrics.RecordGrounding(w.reg.Name, len(res.Problem.Actions()))
	inv.end(ctx, RunStatusCompiled, nil, nil)
	return res, nil
}
