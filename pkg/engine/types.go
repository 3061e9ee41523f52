package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/model"
)

// Params is the string-keyed configuration handed to an engine factory,
// e.g. {"heuristic": "goalcount"}.
type Params map[string]string

// Get returns the value of key, or def when it is unset.
func (p Params) Get(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns key parsed as an integer, or def when it is unset.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", key, err)
	}
	return n, nil
}

// Merge returns a copy of p overlaid with other.
func (p Params) Merge(other Params) Params {
	out := make(Params, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String renders the parameters sorted by key.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + p[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ParseParams parses "key=value" pairs.
func ParseParams(pairs []string) (Params, error) {
	out := make(Params, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", pair)
		}
		out[k] = v
	}
	return out, nil
}

// SolveOptions configures a single solve invocation.
type SolveOptions struct {
	// Timeout bounds the wall-clock time of the invocation. Zero means no limit.
	Timeout time.Duration
}

// PlanResult is the outcome of a solve invocation.
type PlanResult struct {
	// Status is the outcome of the invocation.
	Status Status `json:"status"`

	// Plan is set when Status is solved.
	Plan *model.SequentialPlan `json:"-"`

	// Engine is the name of the engine that produced the result.
	Engine string `json:"engine"`

	// Metrics contains engine-specific counters such as expanded states.
	Metrics map[string]string `json:"metrics,omitempty"`

	// Log contains diagnostic output of the engine.
	Log string `json:"log,omitempty"`

	// Duration is the wall-clock time of the invocation.
	Duration time.Duration `json:"duration"`
}

// NewPlanResult returns a result without plan for engine.
func NewPlanResult(engine string, status Status) *PlanResult {
	return &PlanResult{Status: status, Engine: engine}
}

// ValidationFailure identifies what made a plan invalid.
type ValidationFailure string

const (
	// FailureNone is used for valid plans.
	FailureNone ValidationFailure = ""

	// FailureUnknownAction indicates a step uses an action not in the problem.
	FailureUnknownAction ValidationFailure = "unknown_action"

	// FailurePrecondition indicates a step is not applicable.
	FailurePrecondition ValidationFailure = "precondition"

	// FailureEffect indicates a step produced conflicting or out-of-range values.
	FailureEffect ValidationFailure = "effect"

	// FailureGoal indicates the final state does not satisfy the goals.
	FailureGoal ValidationFailure = "goal"
)

// ValidationResult is the outcome of validating a plan. An invalid plan is a
// normal result, not an error.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Engine string `json:"engine"`

	// Failure classifies the first failure of an invalid plan.
	Failure ValidationFailure `json:"failure,omitempty"`

	// Diagnostic describes the first failing precondition or unmet goal.
	Diagnostic string `json:"diagnostic,omitempty"`

	// FailedStep is the 0-based index of the failing step, -1 if none.
	FailedStep int `json:"failed_step"`
}

// CompilerResult is a transformed problem and the mapping that lifts its
// action instances back to the original problem.
type CompilerResult struct {
	Problem *model.Problem
	MapBack model.MapBackFunc
	Engine  string
	Kind    CompilationKind
}

// MapBackActionInstance lifts one instance of the compiled problem.
func (r *CompilerResult) MapBackActionInstance(ai *model.ActionInstance) ([]*model.ActionInstance, error) {
	if r.MapBack == nil {
		return []*model.ActionInstance{ai}, nil
	}
	return r.MapBack(ai)
}

// LiftPlan maps a plan of the compiled problem to the original problem.
func (r *CompilerResult) LiftPlan(plan *model.SequentialPlan) (*model.SequentialPlan, error) {
	return plan.ReplaceActionInstances(r.MapBackActionInstance)
}

// RunRecord describes one engine invocation for the run history.
type RunRecord struct {
	ID          string          `json:"id"`
	Mode        OperationMode   `json:"mode"`
	Engine      string          `json:"engine"`
	Problem     string          `json:"problem"`
	ProblemKind capability.Kind `json:"problem_kind"`

	// Status is the plan status for solves, VALID/INVALID for validations
	// and COMPILED for compilations. Empty when Error is set.
	Status string `json:"status,omitempty"`

	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Plan holds the rendered steps of a solved plan.
	Plan []string `json:"plan,omitempty"`
}

// Run record statuses for non-solve modes.
const (
	RunStatusValid    = "VALID"
	RunStatusInvalid  = "INVALID"
	RunStatusCompiled = "COMPILED"
)

// PlanSteps renders the steps of plan, nil for a nil plan.
func PlanSteps(plan *model.SequentialPlan) []string {
	if plan == nil {
		return nil
	}
	actions := plan.Actions()
	out := make([]string, len(actions))
	for i, ai := range actions {
		out[i] = ai.String()
	}
	return out
}
