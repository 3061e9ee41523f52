package pddl

import (
	"errors"
	"testing"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model/samples"
)

func TestParsePlan(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	names := assignNames(r.Problem)

	tests := []struct {
		name     string
		text     string
		strict   bool
		wantLen  int
		wantErr  bool
		wantLine int
	}{
		{
			name:    "plain steps",
			text:    "(move l0 l1)\n(move l1 l2)\n",
			strict:  true,
			wantLen: 2,
		},
		{
			name:    "timed steps with comments",
			text:    "; plan for robot\n0: (move l0 l1) [1]\n1.000: (MOVE L1 L2) [1.000]\n; cost = 2 (unit cost)\n",
			strict:  true,
			wantLen: 2,
		},
		{
			name:   "empty plan file",
			text:   "",
			strict: true,
		},
		{
			name:    "noisy output",
			text:    "Parsing...\nSolution found!\n(move l0 l1)\nPlan length: 1 step(s).\n",
			wantLen: 1,
		},
		{
			name:     "malformed step",
			text:     "(move l0 l1)\n(move l1 l2\n",
			strict:   true,
			wantErr:  true,
			wantLine: 2,
		},
		{
			name:     "noise in plan file",
			text:     "(move l0 l1)\nSolution found\n",
			strict:   true,
			wantErr:  true,
			wantLine: 2,
		},
		{
			name:     "unknown action",
			text:     "(fly l0 l2)\n",
			strict:   true,
			wantErr:  true,
			wantLine: 1,
		},
		{
			name:     "unknown object",
			text:     "\n(move l0 l9)\n",
			wantErr:  true,
			wantLine: 2,
		},
		{
			name:     "wrong arity",
			text:     "(move l0)\n",
			strict:   true,
			wantErr:  true,
			wantLine: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, n, err := ParsePlan("planner", tt.text, names, tt.strict)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePlan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var perr *engine.ResultParsingError
				if !errors.As(err, &perr) {
					t.Fatalf("Expected a ResultParsingError, got %T", err)
				}
				if perr.Line != tt.wantLine {
					t.Errorf("Expected line %d, got %d", tt.wantLine, perr.Line)
				}
				if perr.Engine != "planner" {
					t.Errorf("Expected engine planner, got %s", perr.Engine)
				}
				return
			}
			if n != tt.wantLen || plan.Len() != tt.wantLen {
				t.Errorf("Expected %d steps, got %d (%s)", tt.wantLen, n, plan)
			}
		})
	}
}

func TestParsePlanMapsNamesBack(t *testing.T) {
	r := samples.MustRobot(2, samples.Line(2), 0, 1)
	names := assignNames(r.Problem)

	plan, _, err := ParsePlan("planner", "(move l0 l1)", names, true)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	step := plan.Actions()[0]
	if step.Action() != r.Move {
		t.Errorf("Expected the problem's move action, got %v", step.Action())
	}
	if step.Parameters()[1] != r.Locations[1] {
		t.Errorf("Expected l1 as destination, got %v", step.Parameters()[1])
	}
}
