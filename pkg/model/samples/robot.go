// Package samples builds small reference problems used by the CLI and tests.
package samples

import (
	"fmt"

	"github.com/openfroyo/planforge/pkg/model"
)

// Robot is a robot navigating a graph of locations.
type Robot struct {
	Problem   *model.Problem
	Location  *model.Type
	Locations []*model.Object
	RobotAt   *model.Fluent
	Connected *model.Fluent
	Move      *model.Action
}

// Edge is a directed connection between two location indexes.
type Edge struct {
	From, To int
}

// NewRobot builds the robot problem. Locations are named l0..l(n-1); the
// robot starts at init and must reach goal. Edges are added as given.
func NewRobot(n int, edges []Edge, init, goal int) (*Robot, error) {
	r := &Robot{}
	r.Location = model.UserType("Location", nil)
	r.Problem = model.NewProblem("robot")

	r.RobotAt = model.NewFluent("robot_at", model.BoolType(), model.NewParameter("position", r.Location))
	r.Connected = model.NewFluent("connected", model.BoolType(),
		model.NewParameter("l_from", r.Location), model.NewParameter("l_to", r.Location))
	if err := r.Problem.AddFluent(r.RobotAt, model.False()); err != nil {
		return nil, err
	}
	if err := r.Problem.AddFluent(r.Connected, model.False()); err != nil {
		return nil, err
	}

	r.Move = model.NewAction("move", model.NewParameter("l_from", r.Location), model.NewParameter("l_to", r.Location))
	from, to := r.Move.Parameter("l_from"), r.Move.Parameter("l_to")
	r.Move.AddPrecondition(r.RobotAt.Of(from))
	r.Move.AddPrecondition(r.Connected.Of(from, to))
	r.Move.AddEffect(r.RobotAt.Of(from), model.False())
	r.Move.AddEffect(r.RobotAt.Of(to), model.True())
	if err := r.Problem.AddAction(r.Move); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		o := model.NewObject(fmt.Sprintf("l%d", i), r.Location)
		r.Locations = append(r.Locations, o)
	}
	if err := r.Problem.AddObjects(r.Locations...); err != nil {
		return nil, err
	}

	if err := r.Problem.SetInitialValue(r.RobotAt.Of(r.Locations[init]), model.True()); err != nil {
		return nil, err
	}
	for _, e := range edges {
		if err := r.Problem.SetInitialValue(r.Connected.Of(r.Locations[e.From], r.Locations[e.To]), model.True()); err != nil {
			return nil, err
		}
	}
	if err := r.Problem.AddGoal(r.RobotAt.Of(r.Locations[goal])); err != nil {
		return nil, err
	}
	return r, nil
}

// MustRobot is NewRobot for static inputs known to be valid.
func MustRobot(n int, edges []Edge, init, goal int) *Robot {
	r, err := NewRobot(n, edges, init, goal)
	if err != nil {
		panic(err)
	}
	return r
}

// Line returns the edges of a bidirectional path l0 - l1 - ... - l(n-1).
func Line(n int) []Edge {
	var out []Edge
	for i := 0; i+1 < n; i++ {
		out = append(out, Edge{i, i + 1}, Edge{i + 1, i})
	}
	return out
}

// Battery extends the robot with a bounded battery that each move drains by
// the consumption of the traversed edge.
type Battery struct {
	*Robot
	Level       *model.Fluent
	Consumption *model.Fluent
}

// AddBattery adds battery and consumption fluents to r. costs gives the
// consumption of each edge; missing edges keep the default of -1.
func AddBattery(r *Robot, capacity float64, costs map[Edge]float64) (*Battery, error) {
	b := &Battery{Robot: r}
	b.Level = model.NewFluent("battery", model.BoundedRealType(0, 100))
	b.Consumption = model.NewFluent("consumption", model.RealType(),
		model.NewParameter("l_from", r.Location), model.NewParameter("l_to", r.Location))
	if err := r.Problem.AddFluent(b.Level, nil); err != nil {
		return nil, err
	}
	if err := r.Problem.AddFluent(b.Consumption, model.Int(-1)); err != nil {
		return nil, err
	}

	from, to := r.Move.Parameter("l_from"), r.Move.Parameter("l_to")
	r.Move.AddPrecondition(model.GE(b.Consumption.Of(from, to), model.Int(0)))
	r.Move.AddPrecondition(model.GE(b.Level, b.Consumption.Of(from, to)))
	r.Move.AddEffect(b.Level, model.Minus(b.Level, b.Consumption.Of(from, to)))

	if err := r.Problem.SetInitialValue(b.Level, model.Real(capacity)); err != nil {
		return nil, err
	}
	for e, c := range costs {
		if err := r.Problem.SetInitialValue(b.Consumption.Of(r.Locations[e.From], r.Locations[e.To]), model.Real(c)); err != nil {
			return nil, err
		}
	}
	return b, nil
}
