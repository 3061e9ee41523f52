// Package model is the engine-agnostic representation of planning problems.
//
// # Overview
//
// A Problem aggregates user types, objects, fluents with optional default
// values, actions, explicit initial values and goals. Fluents are templates
// shared freely between problems; Expressions are immutable trees built with
// the package functions and Fluent.Of:
//
//	loc := model.UserType("Location", nil)
//	robotAt := model.NewFluent("robot_at", model.BoolType(), model.NewParameter("position", loc))
//	move := model.NewAction("move", model.NewParameter("l_from", loc), model.NewParameter("l_to", loc))
//	move.AddPrecondition(robotAt.Of(move.Parameter("l_from")))
//	move.AddEffect(robotAt.Of(move.Parameter("l_to")), model.True())
//
// # Kind
//
// Problem.Kind derives the capability features the problem uses. The result
// is cached and recomputed after any mutation of the problem or one of its
// actions.
//
// # Plans
//
// ActionInstance binds objects to an action's parameters and SequentialPlan
// orders instances. Plans are immutable; ReplaceActionInstances produces a
// new plan, typically to lift a plan found for a compiled problem.
package model
