// Package config reads and writes planforge documents and configuration.
//
// # Problem documents
//
// A problem document describes types, fluents, objects, actions, initial
// values and goals. It can be written in YAML, JSON or CUE, or computed by
// a Starlark script. Conditions, effects and goals use a small s-expression
// syntax:
//
//	name: robot
//	types:
//	  - name: Location
//	fluents:
//	  - name: robot_at
//	    type: bool
//	    params: [{name: position, type: Location}]
//	    default: false
//	objects:
//	  - {name: l0, type: Location}
//	  - {name: l1, type: Location}
//	actions:
//	  - name: move
//	    params: [{name: from, type: Location}, {name: to, type: Location}]
//	    preconditions: ["(robot_at ?from)", "(not (= ?from ?to))"]
//	    effects:
//	      - {fluent: "(robot_at ?from)", value: false}
//	      - {fluent: "(robot_at ?to)", value: true}
//	init:
//	  - {fluent: "(robot_at l0)", value: true}
//	goals: ["(robot_at l1)"]
//
// Names starting with ? refer to action parameters or quantified variables,
// as in (exists (?x - Location) (robot_at ?x)). Zero-arity fluents are
// written (battery) or battery. Numbers with a decimal point are reals.
//
// Document.Build constructs the model; FromProblem renders a model back to
// a document deterministically.
//
// # Starlark scripts
//
// A .star file assigns the document, as a dict, to the global problem.
// The builtins sexpr and names help generating expressions and object
// names. Scripts have no filesystem or network access and run under a
// timeout.
//
// # Engine manifests
//
// External engines are declared in YAML manifests validated with
// go-playground/validator. See EngineManifest.
//
// # Environment
//
// AppConfig is read from PLANFORGE_* environment variables.
package config
