package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *ProblemDocument)
	}{
		{
			name:    "robot with comprehension",
			content: robotCUE,
			checkFunc: func(t *testing.T, doc *ProblemDocument) {
				if len(doc.Objects) != 2 || doc.Objects[1].Name != "l1" {
					t.Errorf("Expected objects l0 and l1, got %+v", doc.Objects)
				}
				p, err := doc.Build()
				if err != nil {
					t.Fatalf("failed to build: %v", err)
				}
				if _, ok := p.ActionByName("jump"); !ok {
					t.Error("Expected action jump")
				}
			},
		},
		{
			name:    "nested under problem",
			content: "problem: {\n" + robotCUE + "\n}\n",
			checkFunc: func(t *testing.T, doc *ProblemDocument) {
				if doc.Name != "robot" {
					t.Errorf("Expected name robot, got %s", doc.Name)
				}
			},
		},
		{
			name: "numeric and boolean scalars",
			content: `
name: "counter"
fluents: [{name: "count", type: "int[0, 5]", default: 0}]
actions: [{name: "inc", effects: [{fluent: "count", value: 1, kind: "increase"}]}]
goals: ["(= count 2)"]
`,
			checkFunc: func(t *testing.T, doc *ProblemDocument) {
				if doc.Actions[0].Effects[0].Value != "1" {
					t.Errorf("Expected value 1, got %q", doc.Actions[0].Effects[0].Value)
				}
				if doc.Fluents[0].Default == nil || *doc.Fluents[0].Default != "0" {
					t.Errorf("Expected default 0, got %v", doc.Fluents[0].Default)
				}
			},
		},
		{
			name:    "name of wrong type",
			content: "name: 42\n",
			wantErr: true,
		},
		{
			name:    "unknown field",
			content: "name: \"robot\"\nhorizon: 3\n",
			wantErr: true,
		},
		{
			name:    "bad identifier",
			content: "name: \"robot\"\nobjects: [{name: \"l 0\", type: \"Location\"}]\n",
			wantErr: true,
		},
		{
			name:    "bad effect kind",
			content: "name: \"r\"\nactions: [{name: \"a\", effects: [{fluent: \"f\", value: 1, kind: \"toggle\"}]}]\n",
			wantErr: true,
		},
		{
			name:    "not concrete",
			content: "name: string\n",
			wantErr: true,
		},
		{
			name:    "invalid syntax",
			content: "name: {\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := parser.ParseInline(ctx, tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInline() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.checkFunc != nil {
				tt.checkFunc(t, doc)
			}
		})
	}
}

func TestCUEParser_ErrorsCarryPositions(t *testing.T) {
	parser := NewCUEParser()
	_, err := parser.ParseInline(context.Background(), "name: 42\n")

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Expected ValidationErrors, got %T: %v", err, err)
	}
	if len(verrs) == 0 {
		t.Fatal("Expected at least one validation error")
	}
	if verrs[0].Severity != "error" {
		t.Errorf("Expected severity error, got %s", verrs[0].Severity)
	}
}

func TestCUEParser_ParseFileAndDirectory(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	dir := t.TempDir()
	file := writeFile(t, dir, "robot.cue", robotCUE)

	fromFile, err := parser.ParseProblem(ctx, file)
	if err != nil {
		t.Fatalf("failed to parse file: %v", err)
	}

	pkgDir := filepath.Join(dir, "pkg")
	if err := os.Mkdir(pkgDir, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	writeFile(t, pkgDir, "a.cue", `package robot

name: "robot"
types: [{name: "Location"}]
objects: [for i in [0, 1] {name: "l\(i)", type: "Location"}]
`)
	writeFile(t, pkgDir, "b.cue", `package robot

fluents: [{
	name: "robot_at"
	type: "bool"
	params: [{name: "position", type: "Location"}]
	default: false
}]
actions: [{
	name: "jump"
	params: [{name: "to", type: "Location"}]
	effects: [{fluent: "(robot_at ?to)", value: true}]
}]
goals: ["(robot_at l1)"]
`)

	fromDir, err := parser.ParseProblem(ctx, pkgDir)
	if err != nil {
		t.Fatalf("failed to parse package: %v", err)
	}
	if !reflect.DeepEqual(fromFile, fromDir) {
		t.Errorf("Expected file and package to agree\nfile: %+v\ndir:  %+v", fromFile, fromDir)
	}

	if _, err := parser.ParseProblem(ctx, filepath.Join(dir, "missing.cue")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestCUEParser_ParsePlan(t *testing.T) {
	parser := NewCUEParser()
	path := writeFile(t, t.TempDir(), "plan.cue", `
plan: actions: [
	{action: "move", params: ["l0", "l1"]},
	{action: "move", params: ["l1", "l2"]},
]
`)

	doc, err := parser.ParsePlan(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to parse plan: %v", err)
	}
	want := []PlanStepDecl{{Action: "move", Params: []string{"l0", "l1"}}, {Action: "move", Params: []string{"l1", "l2"}}}
	if !reflect.DeepEqual(doc.Actions, want) {
		t.Errorf("Expected %+v, got %+v", want, doc.Actions)
	}
}

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry()

	if got := sr.ListSchemas(); !reflect.DeepEqual(got, []string{SchemaPlan, SchemaProblem}) {
		t.Errorf("Expected built-in schemas, got %v", got)
	}

	if err := sr.RegisterSchema("limits", "#Limits: {max: int & >0}", "#Limits"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}
	if err := sr.RegisterSchema("broken", "#X: {", "#X"); err == nil {
		t.Error("Expected error for invalid schema source")
	}
	if err := sr.RegisterSchema("nodef", "#X: int", "#Y"); err == nil {
		t.Error("Expected error for missing definition")
	}

	ctx := context.Background()
	if err := sr.ValidateAgainstSchema(ctx, "limits", map[string]interface{}{"max": 3}); err != nil {
		t.Errorf("Expected valid data, got %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "limits", map[string]interface{}{"max": -1}); err == nil {
		t.Error("Expected error for max=-1")
	}
	if err := sr.ValidateAgainstSchema(ctx, "unknown", map[string]interface{}{}); err == nil {
		t.Error("Expected error for unknown schema")
	}
	if _, ok := sr.GetSchema("unknown"); ok {
		t.Error("Expected unknown schema to be missing")
	}
}
