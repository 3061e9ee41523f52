package engine

import (
	"context"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/model"
)

// Engine is an acquired engine instance. Close releases every resource the
// instance holds, terminating and reaping any process it started. Close must
// be safe to call more than once.
type Engine interface {
	// Name returns the registered name of the engine.
	Name() string

	// Close releases the engine.
	Close() error
}

// Solver is an engine providing the oneshot_planner mode.
type Solver interface {
	Engine

	// Solve searches for a plan. Engines must not mutate p. An engine that
	// fails internally reports StatusInternalError or returns an error; the
	// selector maps errors to statuses. Malformed engine output is reported
	// as a ResultParsingError.
	Solve(ctx context.Context, p *model.Problem, opts SolveOptions) (*PlanResult, error)
}

// Validator is an engine providing the plan_validator mode.
type Validator interface {
	Engine

	// Validate checks plan against p. An invalid plan is reported in the
	// result, not as an error.
	Validate(ctx context.Context, p *model.Problem, plan *model.SequentialPlan) (*ValidationResult, error)
}

// Compiler is an engine providing the compiler mode.
type Compiler interface {
	Engine

	// Compile transforms p into an equivalent problem. p is left untouched.
	Compile(ctx context.Context, p *model.Problem, kind CompilationKind) (*CompilerResult, error)
}

// Factory creates an engine instance configured by params.
type Factory func(params Params) (Engine, error)

// RunRecorder persists a record of every engine invocation.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *RunRecord) error
}

// AdmissionInput describes a candidate engine for an admission decision.
type AdmissionInput struct {
	Engine   string          `json:"engine"`
	Priority int             `json:"priority"`
	Source   string          `json:"source"`
	Mode     OperationMode   `json:"mode"`
	Kind     capability.Kind `json:"kind"`

	// Explicit is true when the engine was requested by name.
	Explicit bool   `json:"explicit"`
	Params   Params `json:"params,omitempty"`
}

// AdmissionPolicy decides whether a candidate engine may be selected.
type AdmissionPolicy interface {
	// Admit returns the reasons the candidate is denied; none means admitted.
	Admit(ctx context.Context, in AdmissionInput) ([]string, error)
}
