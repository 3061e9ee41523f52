// Package runner implements both ends of the runner protocol above the
// wire codec: Server answers SOLVE requests with a Go solver, and the
// helpers in this file convert between protocol messages and engine
// results for the drivers that talk to runners.
package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/planforge/pkg/config"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/protocol"
)

// EncodeProblem renders p as the JSON problem document carried by SOLVE.
func EncodeProblem(p *model.Problem) (json.RawMessage, error) {
	data, err := json.Marshal(config.FromProblem(p))
	if err != nil {
		return nil, fmt.Errorf("failed to encode problem %s: %w", p.Name(), err)
	}
	return data, nil
}

// DecodeProblem builds the problem carried by a SOLVE request.
func DecodeProblem(data json.RawMessage) (*model.Problem, error) {
	doc, err := config.DecodeProblemDocument(data, config.FormatJSON)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

// Steps renders plan as protocol steps.
func Steps(plan *model.SequentialPlan) []protocol.PlanStep {
	if plan == nil {
		return nil
	}
	doc := config.PlanDocumentFrom(plan)
	out := make([]protocol.PlanStep, len(doc.Actions))
	for i, step := range doc.Actions {
		out[i] = protocol.PlanStep{Action: step.Action, Params: step.Params}
	}
	return out
}

// Plan resolves protocol steps against the actions and objects of p.
func Plan(p *model.Problem, steps []protocol.PlanStep) (*model.SequentialPlan, error) {
	doc := &config.PlanDocument{Actions: make([]config.PlanStepDecl, len(steps))}
	for i, step := range steps {
		doc.Actions[i] = config.PlanStepDecl{Action: step.Action, Params: step.Params}
	}
	return doc.Build(p)
}

// Result converts a DONE message into a plan result for engine name. A
// runner reply that names an unknown status, omits the plan of a solved
// status, or refers to unknown actions or objects is a ResultParsingError.
func Result(name string, p *model.Problem, done *protocol.DoneMessage) (*engine.PlanResult, error) {
	status := engine.Status(done.Status)
	if err := status.Validate(); err != nil {
		return nil, &engine.ResultParsingError{Engine: name, Err: err}
	}

	res := engine.NewPlanResult(name, status)
	res.Metrics = done.Metrics
	res.Log = done.Log
	res.Duration = time.Duration(done.Duration * float64(time.Second))

	if !status.IsSolved() {
		return res, nil
	}
	if done.Plan == nil {
		return nil, &engine.ResultParsingError{Engine: name, Err: errors.New("solved status without plan")}
	}
	plan, err := Plan(p, done.Plan)
	if err != nil {
		return nil, &engine.ResultParsingError{Engine: name, Err: err}
	}
	res.Plan = plan
	return res, nil
}

// ErrorResult converts an ERROR message into a plan result for engine name.
func ErrorResult(name string, msg *protocol.ErrorMessage) *engine.PlanResult {
	status := engine.StatusInternalError
	if msg.Code == protocol.ErrCodeUnsupported {
		status = engine.StatusUnsupportedProblem
	}
	res := engine.NewPlanResult(name, status)
	res.Log = fmt.Sprintf("runner error %s: %s", msg.Code, msg.Message)
	return res
}
