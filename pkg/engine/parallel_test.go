package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/planforge/pkg/model/samples"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

func TestParallelFirstDefinitiveWins(t *testing.T) {
	reg := NewRegistry()
	fleet := newFakeFleet()
	fleet.register(t, reg, "A", 0, classical, func(f *fakeSolver, ctx context.Context) (*PlanResult, error) {
		select {
		case <-time.After(10 * time.Millisecond):
			return solved("A"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	fleet.register(t, reg, "B", 0, classical, (*fakeSolver).blockUntilCancelled)
	fleet.register(t, reg, "C", 0, classical, (*fakeSolver).blockUntilCancelled)

	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	require.NoError(t, err)
	sel := NewSelector(reg, Options{Telemetry: tel})
	r := samples.MustRobot(2, samples.Line(2), 0, 1)

	res, err := sel.Solve(context.Background(), r.Problem, Parallel([]string{"A", "B", "C"}), SolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Engine)
	assert.Equal(t, StatusSolvedSatisficing, res.Status)

	for _, name := range []string{"B", "C"} {
		inst := fleet.get(name)
		require.Len(t, inst, 1)
		assert.True(t, inst[0].cancelled.Load(), "%s should be cancelled", name)
	}
	for _, name := range []string{"A", "B", "C"} {
		assert.Equal(t, int32(1), fleet.get(name)[0].closed.Load(), "%s should be closed once", name)
	}
}

func TestParallelRaceEventsShareID(t *testing.T) {
	reg := NewRegistry()
	fleet := newFakeFleet()
	fleet.register(t, reg, "A", 0, classical, func(f *fakeSolver, ctx context.Context) (*PlanResult, error) {
		return solved("A"), nil
	})
	fleet.register(t, reg, "B", 0, classical, (*fakeSolver).blockUntilCancelled)

	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	require.NoError(t, err)
	var (
		mu     sync.Mutex
		events []telemetry.Event
	)
	tel.Events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, telemetry.FilterByType(telemetry.EventTypeRaceWon, telemetry.EventTypeEngineCancelled))

	sel := NewSelector(reg, Options{Telemetry: tel})
	r := samples.MustRobot(2, samples.Line(2), 0, 1)
	for i := 0; i < 2; i++ {
		_, err := sel.Solve(context.Background(), r.Problem, Parallel([]string{"A", "B"}), SolveOptions{})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	for i := 0; i < len(events); i += 2 {
		assert.Equal(t, telemetry.EventTypeRaceWon, events[i].Type)
		assert.Equal(t, telemetry.EventTypeEngineCancelled, events[i+1].Type)
		assert.NotEmpty(t, events[i].RunID)
		assert.Equal(t, events[i].RunID, events[i+1].RunID, "events of one race share an ID")
	}
	assert.NotEqual(t, events[0].RunID, events[2].RunID, "each race has its own ID")
}

func TestParallelNoDefinitiveResult(t *testing.T) {
	reg := NewRegistry()
	fleet := newFakeFleet()
	fleet.register(t, reg, "first", 0, classical, func(f *fakeSolver, ctx context.Context) (*PlanResult, error) {
		return &PlanResult{Status: StatusTimeout, Log: "gave up"}, nil
	})
	fleet.register(t, reg, "second", 0, classical, func(f *fakeSolver, ctx context.Context) (*PlanResult, error) {
		return nil, errors.New("crashed")
	})
	sel := NewSelector(reg, Options{})
	r := samples.MustRobot(2, samples.Line(2), 0, 1)

	res, err := sel.Solve(context.Background(), r.Problem, Parallel([]string{"second", "first"}), SolveOptions{})
	require.NoError(t, err)
	// "second" is first in the race, and its crash maps to INTERNAL_ERROR.
	assert.Equal(t, StatusInternalError, res.Status)
	assert.Equal(t, "second", res.Engine)
}

func TestParallelDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	fleet := newFakeFleet()
	fleet.register(t, reg, "same", 0, classical, immediate)
	sel := NewSelector(reg, Options{})
	r := samples.MustRobot(2, samples.Line(2), 0, 1)

	res, err := sel.Solve(context.Background(), r.Problem, Parallel([]string{"same", "same"}, Params{"seed": "1"}, Params{"seed": "2"}), SolveOptions{})
	require.NoError(t, err)
	assert.True(t, res.Status.IsDefinitive())

	inst := fleet.get("same")
	require.Len(t, inst, 2)
	assert.Equal(t, "1", inst[0].params["seed"])
	assert.Equal(t, "2", inst[1].params["seed"])
}

func TestParallelCallerCancellation(t *testing.T) {
	reg := NewRegistry()
	fleet := newFakeFleet()
	fleet.register(t, reg, "A", 0, classical, (*fakeSolver).blockUntilCancelled)
	fleet.register(t, reg, "B", 0, classical, (*fakeSolver).blockUntilCancelled)
	sel := NewSelector(reg, Options{})
	r := samples.MustRobot(2, samples.Line(2), 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := sel.Solve(ctx, r.Problem, Parallel([]string{"A", "B"}), SolveOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, fleet.get("A")[0].cancelled.Load())
	assert.True(t, fleet.get("B")[0].cancelled.Load())
}

func TestWithSolverClosesOnError(t *testing.T) {
	reg := NewRegistry()
	fleet := newFakeFleet()
	fleet.register(t, reg, "a", 0, classical, immediate)
	sel := NewSelector(reg, Options{})

	boom := errors.New("caller failed")
	err := sel.WithSolver(context.Background(), ByName("a", nil), func(Solver) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), fleet.get("a")[0].closed.Load())
}

func TestAcquireValidatorRejectsRace(t *testing.T) {
	sel := NewSelector(NewRegistry(), Options{})
	_, err := sel.AcquireValidator(context.Background(), Parallel([]string{"a", "b"}))
	assert.ErrorIs(t, err, ErrNoSuitableEngine)
}

func TestParallelSolverName(t *testing.T) {
	ps := NewParallelSolver(nil, &fakeSolver{name: "a"}, &fakeSolver{name: "b"})
	assert.Equal(t, "parallel[a,b]", ps.Name())
	require.NoError(t, ps.Close())
}
