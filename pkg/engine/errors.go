package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/planforge/pkg/capability"
)

// ErrorClass groups engine errors for metrics and for the caller's handling.
type ErrorClass string

const (
	// ErrorClassSelection covers failures to find an engine.
	ErrorClassSelection ErrorClass = "selection"

	// ErrorClassUnsupported indicates an engine rejected a problem at runtime.
	ErrorClassUnsupported ErrorClass = "unsupported"

	// ErrorClassParse indicates malformed engine output.
	ErrorClassParse ErrorClass = "parse"

	// ErrorClassTimeout indicates the wall-clock limit was exceeded.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassLimit indicates a configured resource limit was exceeded.
	ErrorClassLimit ErrorClass = "limit"

	// ErrorClassCanceled indicates the caller cancelled the operation.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassInternal covers adapter I/O failures and engine crashes.
	ErrorClassInternal ErrorClass = "internal"
)

// Common error codes.
const (
	ErrCodeEngineNotFound         = "ENGINE_NOT_FOUND"
	ErrCodeNoSuitableEngine       = "NO_SUITABLE_ENGINE"
	ErrCodeUnsupportedProblem     = "UNSUPPORTED_PROBLEM"
	ErrCodeResultParsing          = "RESULT_PARSING"
	ErrCodeTimeout                = "TIMEOUT"
	ErrCodeGroundingLimitExceeded = "GROUNDING_LIMIT_EXCEEDED"
	ErrCodeCanceled               = "CANCELED"
	ErrCodeLaunchFailed           = "LAUNCH_FAILED"
	ErrCodeProtocol               = "PROTOCOL_ERROR"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrEngineNotFound         = errors.New("engine not found")
	ErrNoSuitableEngine       = errors.New("no suitable engine")
	ErrUnsupportedProblem     = errors.New("unsupported problem")
	ErrResultParsing          = errors.New("malformed engine output")
	ErrTimeout                = errors.New("engine timed out")
	ErrGroundingLimitExceeded = errors.New("grounding limit exceeded")
)

// EngineNotFoundError is returned when an explicitly named engine is not registered.
type EngineNotFoundError struct {
	Name  string
	Known []string
}

func (e *EngineNotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("engine %q not found: no engines registered", e.Name)
	}
	return fmt.Sprintf("engine %q not found (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Is reports whether target is ErrEngineNotFound.
func (e *EngineNotFoundError) Is(target error) bool { return target == ErrEngineNotFound }

// NoSuitableEngineError is returned when no registered engine supports the
// requested mode and problem kind.
type NoSuitableEngineError struct {
	Mode   OperationMode
	Kind   capability.Kind
	Reason string

	// Rejected maps candidate names to the reason each one was rejected.
	Rejected map[string]string
}

func (e *NoSuitableEngineError) Error() string {
	msg := fmt.Sprintf("no suitable engine for %s with kind %s", e.Mode, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports whether target is ErrNoSuitableEngine.
func (e *NoSuitableEngineError) Is(target error) bool { return target == ErrNoSuitableEngine }

// UnsupportedProblemError is returned when an engine rejects a problem at runtime.
type UnsupportedProblemError struct {
	Engine  string
	Missing []capability.Feature
}

func (e *UnsupportedProblemError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("engine %s cannot handle the problem", e.Engine)
	}
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("engine %s does not support %s", e.Engine, strings.Join(names, ", "))
}

// Is reports whether target is ErrUnsupportedProblem.
func (e *UnsupportedProblemError) Is(target error) bool { return target == ErrUnsupportedProblem }

// ResultParsingError is returned when engine output cannot be turned into a result.
type ResultParsingError struct {
	Engine string

	// Line is the 1-based line of the offending output, 0 when unknown.
	Line   int
	Output string
	Err    error
}

func (e *ResultParsingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "engine %s: malformed output", e.Engine)
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Output != "" {
		fmt.Fprintf(&b, " %q", e.Output)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ResultParsingError) Unwrap() error { return e.Err }

// Is reports whether target is ErrResultParsing.
func (e *ResultParsingError) Is(target error) bool { return target == ErrResultParsing }

// TimeoutError is returned by validate and compile when the wall-clock limit expires.
type TimeoutError struct {
	Engine  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine %s exceeded timeout of %s", e.Engine, e.Timeout)
}

// Is reports whether target is ErrTimeout or context.DeadlineExceeded.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

// GroundingLimitExceededError is returned when grounding would enumerate more
// parameter tuples than allowed.
type GroundingLimitExceededError struct {
	Action string
	Limit  int
	Count  int
}

func (e *GroundingLimitExceededError) Error() string {
	return fmt.Sprintf("grounding %s requires %d tuples, limit is %d", e.Action, e.Count, e.Limit)
}

// Is reports whether target is ErrGroundingLimitExceeded.
func (e *GroundingLimitExceededError) Is(target error) bool {
	return target == ErrGroundingLimitExceeded
}

// EngineError is a classified adapter fault with context, such as a failed
// subprocess launch or a broken pipe.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Engine is the engine that failed.
	Engine string `json:"engine,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	switch {
	case e.Engine != "" && e.Operation != "":
		fmt.Fprintf(&b, " (engine=%s, operation=%s)", e.Engine, e.Operation)
	case e.Engine != "":
		fmt.Fprintf(&b, " (engine=%s)", e.Engine)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewInternalError creates an internal adapter error.
func NewInternalError(engine, message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Code:    ErrCodeInternal,
		Engine:  engine,
		Message: message,
		Err:     err,
	}
}

// NewLaunchError creates an error for an engine process that could not start.
func NewLaunchError(engine string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Code:    ErrCodeLaunchFailed,
		Engine:  engine,
		Message: "failed to launch engine",
		Err:     err,
	}
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf classifies err. It returns an empty class for nil.
func ClassOf(err error) ErrorClass {
	var ee *EngineError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ee):
		return ee.Class
	case errors.Is(err, ErrEngineNotFound), errors.Is(err, ErrNoSuitableEngine):
		return ErrorClassSelection
	case errors.Is(err, ErrUnsupportedProblem):
		return ErrorClassUnsupported
	case errors.Is(err, ErrResultParsing):
		return ErrorClassParse
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTimeout
	case errors.Is(err, ErrGroundingLimitExceeded):
		return ErrorClassLimit
	case errors.Is(err, context.Canceled):
		return ErrorClassCanceled
	default:
		return ErrorClassInternal
	}
}

// CodeOf returns the error code of err. It returns an empty code for nil.
func CodeOf(err error) string {
	var ee *EngineError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ee) && ee.Code != "":
		return ee.Code
	case errors.Is(err, ErrEngineNotFound):
		return ErrCodeEngineNotFound
	case errors.Is(err, ErrNoSuitableEngine):
		return ErrCodeNoSuitableEngine
	case errors.Is(err, ErrUnsupportedProblem):
		return ErrCodeUnsupportedProblem
	case errors.Is(err, ErrResultParsing):
		return ErrCodeResultParsing
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, ErrGroundingLimitExceeded):
		return ErrCodeGroundingLimitExceeded
	case errors.Is(err, context.Canceled):
		return ErrCodeCanceled
	default:
		return ErrCodeInternal
	}
}
