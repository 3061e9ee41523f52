// Package engine selects and runs planning engines.
//
// # Overview
//
// A Registry holds one Registration per known engine. Each registration
// declares the operation modes the engine provides and, per mode, the
// largest capability.Kind it accepts. Registries are ordinary values built
// at start-up (see package catalog) and passed to a Selector.
//
// # Selection
//
// A Request names engines explicitly or asks for a problem kind:
//
//	sel := engine.NewSelector(reg, engine.Options{Telemetry: tel})
//	res, err := sel.Solve(ctx, problem, engine.ByKind(problem.Kind()), engine.SolveOptions{Timeout: time.Minute})
//
// Kind-based selection keeps the engines whose declared kind is a superset
// of the required one and prefers higher Priority, then earlier
// registration. Unknown names fail with EngineNotFoundError, an empty
// candidate set with NoSuitableEngineError.
//
// # Parallel solving
//
// Several names in a oneshot_planner request build a ParallelSolver. All
// participants run concurrently; the first definitive status (solved or
// unsolvable) wins and the others are cancelled.
//
// # Resource handling
//
// Acquired engines must be closed. WithSolver, WithValidator and
// WithCompiler close on every exit path, and the Solve, Validate and Compile
// entry points use them. Engine processes are terminated and reaped by
// Close or when the invocation context is cancelled.
//
// # Errors
//
// In the solve path engine failures are statuses: a crash is
// INTERNAL_ERROR, an unsupported problem UNSUPPORTED_PROBLEM and an expired
// timeout TIMEOUT. Malformed output is always a ResultParsingError. In the
// validate and compile paths failures are typed errors.
package engine
