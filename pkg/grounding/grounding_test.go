package grounding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/native"
	"github.com/openfroyo/planforge/pkg/grounding"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/model/samples"
	"github.com/openfroyo/planforge/pkg/validator"
)

func actionNames(p *model.Problem) []string {
	var names []string
	for _, a := range p.Actions() {
		names = append(names, a.Name())
	}
	return names
}

func TestGroundTwoLocations(t *testing.T) {
	ctx := context.Background()
	r := samples.MustRobot(2, []samples.Edge{{From: 0, To: 1}}, 0, 1)

	res, err := grounding.Ground(ctx, r.Problem, grounding.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"move_l0_l1", "move_l1_l0"}, actionNames(res.Problem))
	assert.Equal(t, 4, res.Tuples)
	assert.Equal(t, 2, res.Dropped, "self loops assign robot_at twice")
	assert.False(t, res.Problem.Kind().Has(capability.ActionParameters))
	assert.Equal(t, len(r.Problem.Goals()), len(res.Problem.Goals()))

	plan, err := native.New(native.Options{}).Solve(ctx, res.Problem, engine.SolveOptions{})
	require.NoError(t, err)
	require.True(t, plan.Status.IsSolved())
	assert.Equal(t, []string{"move_l0_l1"}, engine.PlanSteps(plan.Plan))

	lifted, err := plan.Plan.ReplaceActionInstances(res.MapBack)
	require.NoError(t, err)
	assert.Equal(t, []string{"move(l0, l1)"}, engine.PlanSteps(lifted))

	vr, err := validator.New().Validate(ctx, r.Problem, lifted)
	require.NoError(t, err)
	assert.True(t, vr.Valid, vr.Diagnostic)
}

func TestGroundDoesNotModifyInput(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	before := r.Problem.String()
	kind := r.Problem.Kind()

	_, err := grounding.Ground(context.Background(), r.Problem, grounding.Options{PruneStatic: true})
	require.NoError(t, err)
	assert.Equal(t, before, r.Problem.String())
	assert.True(t, kind.Equal(r.Problem.Kind()))
	assert.Len(t, r.Problem.Actions(), 1)
}

func TestGroundPruneStatic(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)

	full, err := grounding.Ground(context.Background(), r.Problem, grounding.Options{})
	require.NoError(t, err)
	pruned, err := grounding.Ground(context.Background(), r.Problem, grounding.Options{PruneStatic: true})
	require.NoError(t, err)

	// 9 tuples, 3 self loops; of the 6 remaining only the 4 line edges are connected.
	assert.Len(t, full.Problem.Actions(), 6)
	assert.Equal(t, []string{"move_l0_l1", "move_l1_l0", "move_l1_l2", "move_l2_l1"}, actionNames(pruned.Problem))
}

func TestGroundLimit(t *testing.T) {
	r := samples.MustRobot(4, samples.Line(4), 0, 3)

	_, err := grounding.Ground(context.Background(), r.Problem, grounding.Options{Limit: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrGroundingLimitExceeded))

	var gle *engine.GroundingLimitExceededError
	require.ErrorAs(t, err, &gle)
	assert.Equal(t, "move", gle.Action)
	assert.Equal(t, 10, gle.Limit)
	assert.Equal(t, 16, gle.Count)
}

func TestGroundSubtypes(t *testing.T) {
	p := model.NewProblem("depot")
	place := model.UserType("Place", nil)
	depot := model.UserType("Depot", place)
	visited := model.NewFluent("visited", model.BoolType(), model.NewParameter("p", place))
	require.NoError(t, p.AddFluent(visited, model.False()))

	visit := model.NewAction("visit", model.NewParameter("p", place))
	visit.AddEffect(visited.Of(visit.Parameter("p")), model.True())
	require.NoError(t, p.AddAction(visit))

	a := model.NewObject("a", place)
	d := model.NewObject("d", depot)
	require.NoError(t, p.AddObjects(a, d))
	require.NoError(t, p.AddGoal(visited.Of(d)))

	res, err := grounding.Ground(context.Background(), p, grounding.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"visit_a", "visit_d"}, actionNames(res.Problem))

	ground, _ := res.Problem.ActionByName("visit_d")
	orig, params, ok := res.Origin(ground)
	require.True(t, ok)
	assert.Same(t, visit, orig)
	assert.Equal(t, []*model.Object{d}, params)
}

func TestGroundExpandsQuantifiers(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	x := model.NewVariable("x", r.Location)

	// Teleport anywhere as long as the robot is somewhere.
	teleport := model.NewAction("teleport", model.NewParameter("to", r.Location))
	teleport.AddPrecondition(model.Exists(r.RobotAt.Of(x), x))
	teleport.AddPrecondition(model.Not(model.Equals(teleport.Parameter("to"), r.Locations[1])))
	require.NoError(t, r.Problem.AddAction(teleport))

	res, err := grounding.Ground(context.Background(), r.Problem, grounding.Options{})
	require.NoError(t, err)

	_, ok := res.Problem.ActionByName("teleport_l1")
	assert.False(t, ok, "the equality folds to false for l1")

	tp, ok := res.Problem.ActionByName("teleport_l2")
	require.True(t, ok)
	require.Len(t, tp.Preconditions(), 1)
	assert.Equal(t, "(robot_at(l0) or robot_at(l1) or robot_at(l2))", tp.Preconditions()[0].String())
	assert.False(t, res.Problem.Kind().Has(capability.ExistentialConditions))
}

func TestGroundNameCollision(t *testing.T) {
	r := samples.MustRobot(2, samples.Line(2), 0, 1)
	clash := model.NewAction("move_l0_l1")
	clash.AddPrecondition(r.RobotAt.Of(r.Locations[0]))
	clash.AddEffect(r.RobotAt.Of(r.Locations[1]), model.True())
	require.NoError(t, r.Problem.AddAction(clash))

	res, err := grounding.Ground(context.Background(), r.Problem, grounding.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"move_l0_l1", "move_l1_l0", "move_l0_l1_2"}, actionNames(res.Problem))

	ground, _ := res.Problem.ActionByName("move_l0_l1_2")
	orig, _, ok := res.Origin(ground)
	require.True(t, ok)
	assert.Same(t, clash, orig)
}

func TestMapBackRejectsForeignActions(t *testing.T) {
	r := samples.MustRobot(2, samples.Line(2), 0, 1)
	res, err := grounding.Ground(context.Background(), r.Problem, grounding.Options{})
	require.NoError(t, err)

	ai, err := model.NewActionInstance(r.Move, r.Locations[0], r.Locations[1])
	require.NoError(t, err)
	_, err = res.MapBack(ai)
	assert.Error(t, err)
}

func TestCompileThroughSelector(t *testing.T) {
	reg := engine.NewRegistry()
	require.NoError(t, grounding.Register(reg))
	sel := engine.NewSelector(reg, engine.Options{})
	r := samples.MustRobot(2, samples.Line(2), 0, 1)

	res, err := sel.Compile(context.Background(), r.Problem, engine.CompilationGrounding, engine.Request{})
	require.NoError(t, err)
	assert.Equal(t, grounding.Name, res.Engine)
	assert.Len(t, res.Problem.Actions(), 2)

	_, err = sel.Compile(context.Background(), r.Problem, engine.CompilationGrounding, engine.ByName(grounding.Name, engine.Params{"limit": "3"}))
	assert.True(t, errors.Is(err, engine.ErrGroundingLimitExceeded))
}
