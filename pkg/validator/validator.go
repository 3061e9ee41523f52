// Package validator provides the reference plan validator. It replays a
// sequential plan with the simulator and never defers to an external engine,
// so it can be used to cross-check the output of any planner.
package validator

import (
	"context"
	"fmt"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/simulator"
)

// Name is the registered name of the validator.
const Name = "sequential-plan-validator"

// Kind returns the features the validator accepts: everything the simulator
// can replay.
func Kind() capability.Kind {
	var features []capability.Feature
	for _, f := range capability.AllFeatures() {
		if f != capability.ContinuousTime {
			features = append(features, f)
		}
	}
	return capability.NewKind(features...)
}

// Register adds the validator to reg.
func Register(reg *engine.Registry) error {
	return reg.Register(engine.Registration{
		Name:        Name,
		Description: "Reference validator replaying sequential plans",
		Priority:    100,
		Modes:       map[engine.OperationMode]capability.Kind{engine.ModePlanValidator: Kind()},
		Factory:     func(engine.Params) (engine.Engine, error) { return New(), nil },
		Source:      "builtin",
	})
}

// Validator replays plans. It holds no state between calls.
type Validator struct{}

// New creates a validator.
func New() *Validator { return &Validator{} }

// Name returns the engine name.
func (v *Validator) Name() string { return Name }

// Close is a no-op.
func (v *Validator) Close() error { return nil }

// Validate replays plan from the initial state of p. A plan that is not
// applicable or does not reach the goals yields an invalid result with a
// diagnostic for the first failure; errors are reserved for problems the
// simulator cannot evaluate and for ctx expiry.
func (v *Validator) Validate(ctx context.Context, p *model.Problem, plan *model.SequentialPlan) (*engine.ValidationResult, error) {
	sim := simulator.New(p)
	st, err := sim.InitialState()
	if err != nil {
		return nil, err
	}

	for i, ai := range plan.Actions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if reason := membership(p, ai); reason != "" {
			return invalid(engine.FailureUnknownAction, i, "step %d (%s): %s", i+1, ai, reason), nil
		}

		viol, err := sim.CheckPreconditions(st, ai)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, ai, err)
		}
		if viol != nil {
			return invalid(engine.FailurePrecondition, i, "step %d (%s): %s", i+1, ai, viol), nil
		}

		next, viol, err := sim.Apply(st, ai)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, ai, err)
		}
		if viol != nil {
			return invalid(engine.FailureEffect, i, "step %d (%s): %s", i+1, ai, viol), nil
		}
		st = next
	}

	goal, err := sim.UnmetGoal(st)
	if err != nil {
		return nil, err
	}
	if goal != nil {
		return invalid(engine.FailureGoal, -1, "goal %s is not satisfied", goal), nil
	}
	return &engine.ValidationResult{Valid: true, Engine: Name, FailedStep: -1}, nil
}

// membership checks that ai refers to an action and objects of p itself,
// not to look-alikes from another problem.
func membership(p *model.Problem, ai *model.ActionInstance) string {
	a, ok := p.ActionByName(ai.Action().Name())
	if !ok || a != ai.Action() {
		return fmt.Sprintf("action %s is not part of problem %s", ai.Action().Name(), p.Name())
	}
	for _, o := range ai.Parameters() {
		if obj, ok := p.ObjectByName(o.Name()); !ok || obj != o {
			return fmt.Sprintf("object %s is not part of problem %s", o.Name(), p.Name())
		}
	}
	return ""
}

func invalid(failure engine.ValidationFailure, step int, format string, args ...interface{}) *engine.ValidationResult {
	return &engine.ValidationResult{
		Valid:      false,
		Engine:     Name,
		Failure:    failure,
		Diagnostic: fmt.Sprintf(format, args...),
		FailedStep: step,
	}
}
