package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the outcome of a solve invocation.
type Status string

const (
	// StatusSolvedSatisficing indicates a valid plan without an optimality guarantee.
	StatusSolvedSatisficing Status = "SOLVED_SATISFICING"

	// StatusSolvedOptimally indicates a plan proven optimal for the engine's metric.
	StatusSolvedOptimally Status = "SOLVED_OPTIMALLY"

	// StatusUnsolvableProven indicates the engine proved no plan exists.
	StatusUnsolvableProven Status = "UNSOLVABLE_PROVEN"

	// StatusUnsolvableIncompletely indicates an incomplete search found no plan.
	StatusUnsolvableIncompletely Status = "UNSOLVABLE_INCOMPLETELY"

	// StatusTimeout indicates the wall-clock limit expired.
	StatusTimeout Status = "TIMEOUT"

	// StatusInternalError indicates the engine crashed or could not be run.
	StatusInternalError Status = "INTERNAL_ERROR"

	// StatusUnsupportedProblem indicates the engine cannot handle the problem.
	StatusUnsupportedProblem Status = "UNSUPPORTED_PROBLEM"
)

// IsSolved returns true if the status carries a plan.
func (s Status) IsSolved() bool {
	return s == StatusSolvedSatisficing || s == StatusSolvedOptimally
}

// IsUnsolvable returns true if the engine reported that no plan was found.
func (s Status) IsUnsolvable() bool {
	return s == StatusUnsolvableProven || s == StatusUnsolvableIncompletely
}

// IsDefinitive returns true for statuses that end a parallel race.
func (s Status) IsDefinitive() bool {
	return s.IsSolved() || s.IsUnsolvable()
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusSolvedSatisficing, StatusSolvedOptimally, StatusUnsolvableProven,
		StatusUnsolvableIncompletely, StatusTimeout, StatusInternalError,
		StatusUnsupportedProblem:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}

// MarshalJSON implements json.Marshaler with validation.
func (s Status) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := Status(str)
	if err := status.Validate(); err != nil {
		return err
	}
	*s = status
	return nil
}

// OperationMode is a kind of service an engine provides.
type OperationMode string

const (
	// ModeOneshotPlanner returns a single plan or a definitive failure.
	ModeOneshotPlanner OperationMode = "oneshot_planner"

	// ModePlanValidator checks a plan against a problem.
	ModePlanValidator OperationMode = "plan_validator"

	// ModeCompiler transforms a problem into an equivalent one.
	ModeCompiler OperationMode = "compiler"

	// ModeAnytimePlanner refines plans incrementally. No built-in engine provides it.
	ModeAnytimePlanner OperationMode = "anytime_planner"
)

// Validate checks if the operation mode is valid.
func (m OperationMode) Validate() error {
	switch m {
	case ModeOneshotPlanner, ModePlanValidator, ModeCompiler, ModeAnytimePlanner:
		return nil
	default:
		return fmt.Errorf("invalid operation mode: %s", m)
	}
}

// ParseOperationMode parses a mode name, accepting upper case.
func ParseOperationMode(s string) (OperationMode, error) {
	m := OperationMode(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Validate()
}

// CompilationKind names a problem transformation.
type CompilationKind string

const (
	// CompilationGrounding replaces parametrized actions with ground ones.
	CompilationGrounding CompilationKind = "GROUNDING"
)

// Validate checks if the compilation kind is valid.
func (k CompilationKind) Validate() error {
	switch k {
	case CompilationGrounding:
		return nil
	default:
		return fmt.Errorf("invalid compilation kind: %s", k)
	}
}
