package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// ParallelSolver races several solvers on the same problem. The first
// definitive result wins and every other participant is cancelled. Solve
// returns only after all participants have returned.
type ParallelSolver struct {
	solvers []Solver
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
}

// NewParallelSolver creates a race over solvers. Closing the parallel
// solver closes every participant.
func NewParallelSolver(tel *telemetry.Telemetry, solvers ...Solver) *ParallelSolver {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return newParallelSolver(tel, solvers)
}

func newParallelSolver(tel *telemetry.Telemetry, solvers []Solver) *ParallelSolver {
	return &ParallelSolver{
		solvers: solvers,
		tel:     tel,
		logger:  tel.Logger.NewComponentLogger("race"),
	}
}

// Name returns "parallel[a,b,...]".
func (ps *ParallelSolver) Name() string {
	return "parallel[" + strings.Join(ps.names(), ",") + "]"
}

func (ps *ParallelSolver) names() []string {
	names := make([]string, len(ps.solvers))
	for i, s := range ps.solvers {
		names[i] = s.Name()
	}
	return names
}

type raceOutcome struct {
	res *PlanResult
	err error
}

// Solve runs all participants concurrently. When none is definitive the
// outcome of the first participant in list order is returned.
func (ps *ParallelSolver) Solve(ctx context.Context, p *model.Problem, opts SolveOptions) (*PlanResult, error) {
	if len(ps.solvers) == 0 {
		return nil, &NoSuitableEngineError{Mode: ModeOneshotPlanner, Kind: p.Kind(), Reason: "empty race"}
	}

	ctx, span := ps.tel.Tracer.StartRaceSpan(ctx, ps.names())
	defer span.End()
	// one ID ties together the events of this race
	raceID := uuid.New().String()
	logger := ps.logger.WithRunID(raceID)

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]raceOutcome, len(ps.solvers))
	var (
		mu     sync.Mutex
		winner = -1
	)

	var g errgroup.Group
	for i, solver := range ps.solvers {
		g.Go(func() error {
			res, err := solver.Solve(raceCtx, p, opts)
			outcomes[i] = raceOutcome{res: res, err: err}
			if err != nil || res == nil || !res.Status.IsDefinitive() {
				return nil
			}
			mu.Lock()
			if winner < 0 {
				winner = i
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if winner < 0 {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		first := outcomes[0]
		if first.err != nil {
			telemetry.RecordError(span, first.err)
		}
		logger.Debug("no participant returned a definitive status")
		return first.res, first.err
	}

	win := outcomes[winner]
	winName := ps.solvers[winner].Name()
	span.SetAttributes(telemetry.AttrRaceWinner.String(winName), telemetry.AttrStatus.String(string(win.res.Status)))
	telemetry.RecordSuccess(span)
	ps.tel.Metrics.RecordRaceWinner(winName)
	_ = ps.tel.Events.PublishRaceWon(raceID, winName, string(win.res.Status))

	for i, o := range outcomes {
		if i == winner || !errors.Is(o.err, context.Canceled) {
			continue
		}
		name := ps.solvers[i].Name()
		ps.tel.Metrics.RecordRaceCancellation(name)
		_ = ps.tel.Events.PublishEngineCancelled(raceID, name, winName)
	}
	logger.WithEngine(winName, string(ModeOneshotPlanner)).
		WithField("status", string(win.res.Status)).
		Info("race won")
	return win.res, nil
}

// Close closes every participant.
func (ps *ParallelSolver) Close() error {
	var errs []error
	for _, s := range ps.solvers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
