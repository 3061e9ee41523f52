package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/catalog"
	"github.com/openfroyo/planforge/pkg/engines/native"
	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/model/samples"
)

const denyTemporary = `# Engines declared under /tmp are not trusted.
package planforge.selection

import rego.v1

deny contains msg if {
	startswith(input.source, "/tmp/")
	msg := sprintf("engine %s is declared in a temporary directory", [input.engine])
}
`

const denyGreedy = `package planforge.selection

import rego.v1

deny contains {"message": "greedy search is not allowed", "engine": input.engine} if {
	input.params.heuristic == "goalcount"
}

deny contains "numeric problems need an explicit engine" if {
	not input.explicit
	"NUMERIC_FLUENTS" in input.kind
}
`

func newPolicy(t *testing.T, modules ...string) *SelectionPolicy {
	t.Helper()
	policies := make([]Policy, len(modules))
	for i, m := range modules {
		policies[i] = Policy{Name: "p" + string(rune('0'+i)), Rego: m}
	}
	sp, err := NewSelectionPolicy(context.Background(), policies, nil)
	if err != nil {
		t.Fatalf("failed to compile policy: %v", err)
	}
	return sp
}

func TestAdmit(t *testing.T) {
	sp := newPolicy(t, denyTemporary, denyGreedy)
	numeric := capability.NewKind(capability.ActionBased, capability.NumericFluents)

	tests := []struct {
		name string
		in   engine.AdmissionInput
		want []string
	}{
		{
			name: "admitted",
			in:   engine.AdmissionInput{Engine: "fd", Source: "/etc/planforge/fd.yaml", Mode: engine.ModeOneshotPlanner},
		},
		{
			name: "temporary source",
			in:   engine.AdmissionInput{Engine: "fd", Source: "/tmp/fd.yaml"},
			want: []string{"engine fd is declared in a temporary directory"},
		},
		{
			name: "object reason",
			in:   engine.AdmissionInput{Engine: "native-bfs", Source: "builtin", Params: engine.Params{"heuristic": "goalcount"}},
			want: []string{"greedy search is not allowed"},
		},
		{
			name: "kind rule",
			in:   engine.AdmissionInput{Engine: "native-bfs", Source: "builtin", Kind: numeric},
			want: []string{"numeric problems need an explicit engine"},
		},
		{
			name: "explicit request",
			in:   engine.AdmissionInput{Engine: "native-bfs", Source: "builtin", Kind: numeric, Explicit: true},
		},
		{
			name: "several reasons sorted",
			in:   engine.AdmissionInput{Engine: "x", Source: "/tmp/x.yaml", Kind: numeric, Params: engine.Params{"heuristic": "goalcount"}},
			want: []string{
				"engine x is declared in a temporary directory",
				"greedy search is not allowed",
				"numeric problems need an explicit engine",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sp.Admit(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Admit() error = %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Admit() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSelectionPolicyErrors(t *testing.T) {
	if _, err := NewSelectionPolicy(context.Background(), nil, nil); err == nil {
		t.Error("Expected an error for no policies")
	}
	_, err := NewSelectionPolicy(context.Background(), []Policy{{Name: "bad", Rego: "package planforge.selection\n\ndeny contains"}}, nil)
	if err == nil {
		t.Error("Expected a compile error")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "temporary.rego"), []byte(denyTemporary), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a policy"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	sub := filepath.Join(dir, "extra")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "greedy.rego"), []byte(denyGreedy), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	sp, err := Load(context.Background(), []string{dir}, nil)
	if err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}
	policies := sp.Policies()
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "greedy" || policies[1].Name != "temporary" {
		t.Errorf("Expected greedy and temporary in path order, got %s and %s", policies[0].Name, policies[1].Name)
	}
	if policies[1].Description != "Engines declared under /tmp are not trusted." {
		t.Errorf("Unexpected description %q", policies[1].Description)
	}

	if _, err := Load(context.Background(), []string{filepath.Join(dir, "missing")}, nil); err == nil {
		t.Error("Expected an error for a missing path")
	}
	if _, err := Load(context.Background(), []string{filepath.Join(dir, "README.md")}, nil); err == nil {
		t.Error("Expected an error for a non-rego file")
	}
}

func TestSelectorHonorsPolicy(t *testing.T) {
	c, err := catalog.New(catalog.Options{})
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	sp := newPolicy(t, `package planforge.selection

import rego.v1

deny contains "builtin planners are disabled" if {
	input.source == "builtin"
	input.mode == "oneshot_planner"
}
`)
	sel := engine.NewSelector(c.Registry(), engine.Options{Policy: sp})
	r := samples.MustRobot(2, samples.Line(2), 0, 1)

	_, err = sel.Solve(context.Background(), r.Problem, engine.ByName(native.Name, nil), engine.SolveOptions{})
	if !errors.Is(err, engine.ErrNoSuitableEngine) {
		t.Fatalf("Expected ErrNoSuitableEngine, got %v", err)
	}
	if !strings.Contains(err.Error(), "builtin planners are disabled") {
		t.Errorf("Expected the denial in %q", err.Error())
	}

	res, err := sel.Validate(context.Background(), r.Problem, model.NewSequentialPlan(), engine.ByKind(r.Problem.Kind()))
	if err != nil {
		t.Fatalf("Expected validators to stay admitted, got %v", err)
	}
	if res.Valid {
		t.Error("Expected an empty plan to be invalid")
	}
}
