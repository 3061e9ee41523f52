package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// SelectionPolicy implements engine.AdmissionPolicy with compiled Rego
// modules. It is safe for concurrent use.
type SelectionPolicy struct {
	policies []Policy
	query    rego.PreparedEvalQuery
	logger   *telemetry.Logger
}

var _ engine.AdmissionPolicy = (*SelectionPolicy)(nil)

// NewSelectionPolicy compiles policies into one query.
func NewSelectionPolicy(ctx context.Context, policies []Policy, logger *telemetry.Logger) (*SelectionPolicy, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("no policies to compile")
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	opts := []func(*rego.Rego){rego.Query(Query)}
	for _, p := range policies {
		name := p.Source
		if name == "" {
			name = p.Name + ".rego"
		}
		opts = append(opts, rego.Module(name, p.Rego))
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile selection policy: %w", err)
	}

	sp := &SelectionPolicy{
		policies: policies,
		query:    query,
		logger:   logger.NewComponentLogger("policy"),
	}
	sp.logger.WithField("count", len(policies)).Debug("selection policy compiled")
	return sp, nil
}

// Load reads and compiles the policies at paths.
func Load(ctx context.Context, paths []string, logger *telemetry.Logger) (*SelectionPolicy, error) {
	policies, err := NewLoader(logger).LoadFromPaths(paths)
	if err != nil {
		return nil, err
	}
	return NewSelectionPolicy(ctx, policies, logger)
}

// Policies returns the compiled modules.
func (sp *SelectionPolicy) Policies() []Policy {
	out := make([]Policy, len(sp.policies))
	copy(out, sp.policies)
	return out
}

// Admit returns the sorted deny reasons for in.
func (sp *SelectionPolicy) Admit(ctx context.Context, in engine.AdmissionInput) ([]string, error) {
	input, err := toInput(in)
	if err != nil {
		return nil, err
	}

	rs, err := sp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var reasons []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				reasons = append(reasons, reason(d))
			}
		}
	}
	sort.Strings(reasons)

	if len(reasons) > 0 {
		sp.logger.WithField("engine", in.Engine).WithField("reasons", reasons).Debug("engine denied")
	}
	return reasons, nil
}

// toInput renders in as the plain JSON values Rego sees.
func toInput(in engine.AdmissionInput) (map[string]interface{}, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	return out, nil
}

func reason(d interface{}) string {
	switch v := d.(type) {
	case string:
		return v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%v", d)
	}
	return string(data)
}
