package model_test

import (
	"strings"
	"testing"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/model/samples"
)

func TestRobotKind(t *testing.T) {
	r := samples.MustRobot(2, []samples.Edge{{From: 0, To: 1}}, 0, 1)

	want := capability.NewKind(capability.ActionBased, capability.FlatTyping, capability.ActionParameters)
	if got := r.Problem.Kind(); !got.Equal(want) {
		t.Errorf("Expected kind %s, got %s", want, got)
	}
}

func TestKindIsMonotonic(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	before := r.Problem.Kind()

	if _, err := samples.AddBattery(r, 100, nil); err != nil {
		t.Fatalf("failed to add battery: %v", err)
	}
	after := r.Problem.Kind()

	if !before.IsSubsetOf(after) {
		t.Errorf("Kind lost features: before %s, after %s", before, after)
	}
	for _, f := range []capability.Feature{capability.NumericFluents, capability.ContinuousNumbers} {
		if !after.Has(f) {
			t.Errorf("Expected %s in %s", f, after)
		}
	}
}

func TestKindCacheInvalidatedByActionMutation(t *testing.T) {
	r := samples.MustRobot(2, samples.Line(2), 0, 1)
	if r.Problem.Kind().Has(capability.NegativeConditions) {
		t.Fatal("robot problem must not use negative conditions")
	}

	// extending an action already added to the problem must be observed
	r.Move.AddPrecondition(model.Not(r.RobotAt.Of(r.Move.Parameter("l_to"))))

	if !r.Problem.Kind().Has(capability.NegativeConditions) {
		t.Error("Expected NEGATIVE_CONDITIONS after adding a negated precondition")
	}
}

func TestKindFeatures(t *testing.T) {
	vehicle := model.UserType("Vehicle", nil)
	truck := model.UserType("Truck", vehicle)
	p := model.NewProblem("features")

	at := model.NewFluent("at", model.BoolType(), model.NewParameter("v", vehicle))
	fuel := model.NewFluent("fuel", model.BoundedIntType(0, 10))
	if err := p.AddFluent(at, model.False()); err != nil {
		t.Fatalf("failed to add fluent: %v", err)
	}
	if err := p.AddFluent(fuel, model.Int(5)); err != nil {
		t.Fatalf("failed to add fluent: %v", err)
	}

	drive := model.NewAction("drive", model.NewParameter("t", truck))
	x := model.NewVariable("x", vehicle)
	drive.AddPrecondition(model.Or(at.Of(drive.Parameter("t")), model.Exists(at.Of(x), x)))
	drive.AddConditionalEffect(model.GT(fuel, model.Int(0)), at.Of(drive.Parameter("t")), model.True())
	drive.AddDecreaseEffect(fuel, model.Int(1))
	if err := p.AddAction(drive); err != nil {
		t.Fatalf("failed to add action: %v", err)
	}

	k := p.Kind()
	for _, f := range []capability.Feature{
		capability.HierarchicalTyping,
		capability.FlatTyping,
		capability.NumericFluents,
		capability.DiscreteNumbers,
		capability.DisjunctiveConditions,
		capability.ExistentialConditions,
		capability.ConditionalEffects,
		capability.DecreaseEffects,
	} {
		if !k.Has(f) {
			t.Errorf("Expected %s in %s", f, k)
		}
	}
	if k.Has(capability.IncreaseEffects) {
		t.Errorf("Unexpected INCREASE_EFFECTS in %s", k)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *samples.Robot)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(r *samples.Robot) {},
		},
		{
			name: "object not added",
			mutate: func(r *samples.Robot) {
				stray := model.NewObject("l9", r.Location)
				_ = r.Problem.AddGoal(r.RobotAt.Of(stray))
			},
			wantErr: "not part of the problem",
		},
		{
			name: "wrong arity",
			mutate: func(r *samples.Robot) {
				_ = r.Problem.AddGoal(r.Connected.Of(r.Locations[0]))
			},
			wantErr: "expects 2 arguments",
		},
		{
			name: "foreign parameter",
			mutate: func(r *samples.Robot) {
				other := model.NewParameter("other", r.Location)
				r.Move.AddPrecondition(r.RobotAt.Of(other))
			},
			wantErr: "not in scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := samples.MustRobot(2, samples.Line(2), 0, 1)
			tt.mutate(r)
			err := r.Problem.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMissingInitialValue(t *testing.T) {
	loc := model.UserType("Location", nil)
	p := model.NewProblem("missing")
	visited := model.NewFluent("visited", model.BoolType(), model.NewParameter("l", loc))
	if err := p.AddFluent(visited, nil); err != nil {
		t.Fatalf("failed to add fluent: %v", err)
	}
	if err := p.AddObject(model.NewObject("a", loc)); err != nil {
		t.Fatalf("failed to add object: %v", err)
	}

	if err := p.Validate(); err == nil {
		t.Error("Expected error for fluent without default nor explicit value")
	}
}

func TestInitialValues(t *testing.T) {
	r := samples.MustRobot(3, []samples.Edge{{From: 0, To: 1}}, 0, 2)

	all, err := r.Problem.InitialValues()
	if err != nil {
		t.Fatalf("failed to enumerate initial values: %v", err)
	}
	// 3 robot_at + 9 connected
	if len(all) != 12 {
		t.Errorf("Expected 12 initial values, got %d", len(all))
	}

	v, err := r.Problem.InitialValue(r.Connected.Of(r.Locations[0], r.Locations[1]))
	if err != nil {
		t.Fatalf("failed to get initial value: %v", err)
	}
	if !v.IsTrue() {
		t.Errorf("Expected connected(l0, l1) to be true, got %s", v)
	}
	v, err = r.Problem.InitialValue(r.Connected.Of(r.Locations[1], r.Locations[0]))
	if err != nil {
		t.Fatalf("failed to get initial value: %v", err)
	}
	if !v.IsFalse() {
		t.Errorf("Expected default false for connected(l1, l0), got %s", v)
	}
}

func TestSetInitialValueChecksTypes(t *testing.T) {
	r := samples.MustRobot(2, nil, 0, 1)
	b, err := samples.AddBattery(r, 100, nil)
	if err != nil {
		t.Fatalf("failed to add battery: %v", err)
	}

	if err := r.Problem.SetInitialValue(b.Level, model.Real(150)); err == nil {
		t.Error("Expected out-of-bounds error")
	}
	if err := r.Problem.SetInitialValue(r.RobotAt.Of(r.Locations[0]), model.Int(1)); err == nil {
		t.Error("Expected type mismatch error")
	}
	if err := r.Problem.SetInitialValue(r.RobotAt.Of(r.Move.Parameter("l_from")), model.True()); err == nil {
		t.Error("Expected error for non-ground fluent application")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := samples.MustRobot(2, samples.Line(2), 0, 1)
	clone := r.Problem.Clone()

	ca, ok := clone.ActionByName("move")
	if !ok {
		t.Fatal("clone lost action move")
	}
	ca.AddPrecondition(model.Not(r.RobotAt.Of(ca.Parameter("l_to"))))

	if len(r.Move.Preconditions()) != 2 {
		t.Errorf("Expected original action untouched, got %d preconditions", len(r.Move.Preconditions()))
	}
	if r.Problem.Kind().Has(capability.NegativeConditions) {
		t.Error("mutating the clone changed the original kind")
	}
}

func TestExpressionString(t *testing.T) {
	r := samples.MustRobot(2, nil, 0, 1)
	from, to := r.Move.Parameter("l_from"), r.Move.Parameter("l_to")

	tests := []struct {
		expr *model.Expression
		want string
	}{
		{r.RobotAt.Of(r.Locations[0]), "robot_at(l0)"},
		{model.And(r.RobotAt.Of(from), model.Not(r.Connected.Of(from, to))), "(robot_at(l_from) and (not connected(l_from, l_to)))"},
		{model.GE(model.Int(3), model.Real(1.5)), "(1.5 <= 3)"},
		{model.Minus(model.Int(4), model.Int(2)), "(4 - 2)"},
	}

	for _, tt := range tests {
		if got := tt.expr.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestSubstituteSharesUnchangedSubtrees(t *testing.T) {
	r := samples.MustRobot(2, nil, 0, 1)
	from := r.Move.Parameter("l_from")
	constant := r.RobotAt.Of(r.Locations[1])
	e := model.And(r.RobotAt.Of(from), constant)

	ground := e.Substitute(map[*model.Parameter]*model.Object{from: r.Locations[0]})

	if ground.String() != "(robot_at(l0) and robot_at(l1))" {
		t.Errorf("Unexpected substitution result %s", ground)
	}
	if ground.Arg(1) != constant {
		t.Error("Expected unchanged subtree to be shared")
	}
	if e.String() != "(robot_at(l_from) and robot_at(l1))" {
		t.Errorf("Substitute mutated the source expression: %s", e)
	}
}

func TestValidateIntFluentEffects(t *testing.T) {
	tests := []struct {
		name    string
		effect  func(a *model.Action, x *model.Fluent)
		wantErr string
	}{
		{
			name:   "int increase",
			effect: func(a *model.Action, x *model.Fluent) { a.AddIncreaseEffect(x, model.Int(1)) },
		},
		{
			name:   "integral real assign",
			effect: func(a *model.Action, x *model.Fluent) { a.AddEffect(x, model.Real(2)) },
		},
		{
			name:    "real increase",
			effect:  func(a *model.Action, x *model.Fluent) { a.AddIncreaseEffect(x, model.Real(0.5)) },
			wantErr: "has real value",
		},
		{
			name:    "real decrease",
			effect:  func(a *model.Action, x *model.Fluent) { a.AddDecreaseEffect(x, model.Real(0.5)) },
			wantErr: "has real value",
		},
		{
			name:    "real assign",
			effect:  func(a *model.Action, x *model.Fluent) { a.AddEffect(x, model.Real(2.5)) },
			wantErr: "does not fit",
		},
		{
			name:    "division assign",
			effect:  func(a *model.Action, x *model.Fluent) { a.AddEffect(x, model.Div(x, model.Int(2))) },
			wantErr: "does not fit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.NewProblem("counter")
			x := model.NewFluent("x", model.IntType())
			if err := p.AddFluent(x, model.Int(0)); err != nil {
				t.Fatalf("failed to add fluent: %v", err)
			}
			bump := model.NewAction("bump")
			tt.effect(bump, x)
			if err := p.AddAction(bump); err != nil {
				t.Fatalf("failed to add action: %v", err)
			}

			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
