package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/model/samples"
)

func TestBuildRobotDocument(t *testing.T) {
	doc, err := DecodeProblemDocument([]byte(robotYAML), FormatYAML)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	p, err := doc.Build()
	if err != nil {
		t.Fatalf("failed to build: %v", err)
	}

	want := samples.MustRobot(2, []samples.Edge{{From: 0, To: 1}}, 0, 1).Problem
	if p.String() != want.String() {
		t.Errorf("Expected\n%s\ngot\n%s", want, p)
	}
	if !p.Kind().Equal(want.Kind()) {
		t.Errorf("Expected kind %s, got %s", want.Kind(), p.Kind())
	}
	if !reflect.DeepEqual(FromProblem(p), FromProblem(want)) {
		t.Error("Expected equal problems to render identical documents")
	}
}

func TestFromProblemRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		problem func(t *testing.T) *model.Problem
	}{
		{"robot", func(t *testing.T) *model.Problem {
			return samples.MustRobot(4, samples.Line(4), 0, 3).Problem
		}},
		{"battery", func(t *testing.T) *model.Problem {
			return batteryRobot(t).Problem
		}},
		{"hierarchy and quantifiers", func(t *testing.T) *model.Problem {
			p := model.NewProblem("depots")
			place := model.UserType("Place", nil)
			depot := model.UserType("Depot", place)
			visited := model.NewFluent("visited", model.BoolType(), model.NewParameter("p", place))
			stock := model.NewFluent("stock", model.BoundedIntType(0, 5), model.NewParameter("d", depot))
			if err := p.AddFluent(visited, model.False()); err != nil {
				t.Fatalf("failed to add fluent: %v", err)
			}
			if err := p.AddFluent(stock, model.Int(0)); err != nil {
				t.Fatalf("failed to add fluent: %v", err)
			}
			if err := p.AddObjects(model.NewObject("a", place), model.NewObject("d", depot)); err != nil {
				t.Fatalf("failed to add objects: %v", err)
			}
			x := model.NewVariable("x", place)
			visit := model.NewAction("visit", model.NewParameter("p", place))
			visit.AddPrecondition(model.Not(model.Forall(visited.Of(x), x)))
			visit.AddEffect(visited.Of(visit.Parameter("p")), model.True())
			restock := model.NewAction("restock", model.NewParameter("d", depot))
			restock.AddPrecondition(model.LT(stock.Of(restock.Parameter("d")), model.Int(5)))
			restock.AddIncreaseEffect(stock.Of(restock.Parameter("d")), model.Int(1))
			restock.AddConditionalEffect(visited.Of(restock.Parameter("d")), visited.Of(restock.Parameter("d")), model.False())
			if err := p.AddAction(visit); err != nil {
				t.Fatalf("failed to add action: %v", err)
			}
			if err := p.AddAction(restock); err != nil {
				t.Fatalf("failed to add action: %v", err)
			}
			d, _ := p.ObjectByName("d")
			if err := p.AddGoal(model.Equals(stock.Of(d), model.Int(2))); err != nil {
				t.Fatalf("failed to add goal: %v", err)
			}
			return p
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := tt.problem(t)
			doc := FromProblem(orig)

			for _, format := range []Format{FormatYAML, FormatJSON} {
				data, err := EncodeProblemDocument(doc, format)
				if err != nil {
					t.Fatalf("failed to encode %s: %v", format, err)
				}
				decoded, err := DecodeProblemDocument(data, format)
				if err != nil {
					t.Fatalf("failed to decode %s: %v\n%s", format, err, data)
				}
				rebuilt, err := decoded.Build()
				if err != nil {
					t.Fatalf("failed to build from %s: %v\n%s", format, err, data)
				}
				if !reflect.DeepEqual(FromProblem(rebuilt), doc) {
					t.Errorf("Expected %s round trip to preserve the document\n%s", format, data)
				}
				if !rebuilt.Kind().Equal(orig.Kind()) {
					t.Errorf("Expected kind %s, got %s", orig.Kind(), rebuilt.Kind())
				}
			}
		})
	}
}

func TestFromProblemIsSorted(t *testing.T) {
	doc := FromProblem(samples.MustRobot(3, samples.Line(3), 0, 2).Problem)
	if doc.Fluents[0].Name != "connected" || doc.Fluents[1].Name != "robot_at" {
		t.Errorf("Expected fluents sorted by name, got %+v", doc.Fluents)
	}
	for i := 1; i < len(doc.Init); i++ {
		if doc.Init[i-1].Fluent > doc.Init[i].Fluent {
			t.Errorf("Expected sorted initial values, got %s before %s", doc.Init[i-1].Fluent, doc.Init[i].Fluent)
		}
	}
}

func TestBuildTypesInAnyOrder(t *testing.T) {
	doc := &ProblemDocument{
		Name: "types",
		Types: []TypeDecl{
			{Name: "Truck", Parent: "Vehicle"},
			{Name: "Vehicle"},
		},
		Objects: []ObjectDecl{{Name: "t1", Type: "Truck"}},
	}
	p, err := doc.Build()
	if err != nil {
		t.Fatalf("failed to build: %v", err)
	}
	truck, ok := p.UserTypeByName("Truck")
	if !ok || truck.Parent() == nil || truck.Parent().Name() != "Vehicle" {
		t.Fatalf("Expected Truck to extend Vehicle")
	}
	vehicle, _ := p.UserTypeByName("Vehicle")
	if len(p.ObjectsOfType(vehicle)) != 1 {
		t.Errorf("Expected t1 to be a Vehicle")
	}
}

func TestBuildErrors(t *testing.T) {
	location := []TypeDecl{{Name: "Location"}}
	robotAt := FluentDecl{Name: "robot_at", Type: "bool", Params: []ParamDecl{{Name: "p", Type: "Location"}}}

	tests := []struct {
		name    string
		doc     ProblemDocument
		wantErr string
	}{
		{
			name:    "type cycle",
			doc:     ProblemDocument{Name: "x", Types: []TypeDecl{{Name: "A", Parent: "B"}, {Name: "B", Parent: "A"}}},
			wantErr: "own ancestor",
		},
		{
			name:    "unknown parent",
			doc:     ProblemDocument{Name: "x", Types: []TypeDecl{{Name: "A", Parent: "B"}}},
			wantErr: `unknown type "B"`,
		},
		{
			name:    "duplicate type",
			doc:     ProblemDocument{Name: "x", Types: []TypeDecl{{Name: "A"}, {Name: "A"}}},
			wantErr: "declared twice",
		},
		{
			name:    "unknown object type",
			doc:     ProblemDocument{Name: "x", Types: location, Objects: []ObjectDecl{{Name: "r", Type: "Room"}}},
			wantErr: "objects[0]",
		},
		{
			name:    "bad fluent type",
			doc:     ProblemDocument{Name: "x", Fluents: []FluentDecl{{Name: "f", Type: "int[3, 1]"}}},
			wantErr: "fluents[0]",
		},
		{
			name: "default of wrong type",
			doc: ProblemDocument{Name: "x", Types: location, Fluents: []FluentDecl{
				{Name: "robot_at", Type: "bool", Params: robotAt.Params, Default: scalar("5")},
			}},
			wantErr: "fluents[0]",
		},
		{
			name: "unknown fluent in precondition",
			doc: ProblemDocument{Name: "x", Types: location, Fluents: []FluentDecl{robotAt}, Actions: []ActionDecl{{
				Name:          "move",
				Params:        []ParamDecl{{Name: "to", Type: "Location"}},
				Preconditions: []string{"(free ?to)"},
			}}},
			wantErr: "actions[0] (move): preconditions[0]",
		},
		{
			name: "unknown effect kind",
			doc: ProblemDocument{Name: "x", Types: location, Fluents: []FluentDecl{robotAt}, Actions: []ActionDecl{{
				Name:    "move",
				Params:  []ParamDecl{{Name: "to", Type: "Location"}},
				Effects: []EffectDecl{{Fluent: "(robot_at ?to)", Value: "true", Kind: "toggle"}},
			}}},
			wantErr: "unknown effect kind",
		},
		{
			name: "initial value of wrong type",
			doc: ProblemDocument{Name: "x", Types: location, Fluents: []FluentDecl{robotAt},
				Objects: []ObjectDecl{{Name: "l0", Type: "Location"}},
				Init:    []InitDecl{{Fluent: "(robot_at l0)", Value: "3"}}},
			wantErr: "init[0]",
		},
		{
			name: "initial value of non-ground application",
			doc: ProblemDocument{Name: "x", Types: location, Fluents: []FluentDecl{robotAt},
				Init: []InitDecl{{Fluent: "(robot_at ?p)", Value: "true"}}},
			wantErr: "init[0]",
		},
		{
			name:    "non-boolean goal",
			doc:     ProblemDocument{Name: "x", Goals: []string{"3"}},
			wantErr: "goals[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.doc.Build()
			if err == nil {
				t.Fatal("Expected build to fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func scalar(s string) *Scalar {
	v := Scalar(s)
	return &v
}

func TestDecodeProblemDocumentRejects(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"unknown yaml field", "name: robot\nhorizon: 3\n", FormatYAML},
		{"unknown json field", `{"name": "robot", "horizon": 3}`, FormatJSON},
		{"missing name", "types: [{name: Location}]\n", FormatYAML},
		{"effect kind", `{"name": "r", "actions": [{"name": "a", "effects": [{"fluent": "f", "value": 1, "kind": "toggle"}]}]}`, FormatJSON},
		{"list as value", `{"name": "r", "init": [{"fluent": "f", "value": [1]}]}`, FormatJSON},
		{"bytes in cue format", "name: robot", FormatCUE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeProblemDocument([]byte(tt.data), tt.format); err == nil {
				t.Error("Expected decode to fail")
			}
		})
	}
}

func TestScalarAcceptsUnquotedValues(t *testing.T) {
	data := `{"name": "r", "init": [{"fluent": "(a)", "value": true}, {"fluent": "(b)", "value": 2.50}, {"fluent": "(c)", "value": 3}]}`
	doc, err := DecodeProblemDocument([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	want := []Scalar{"true", "2.50", "3"}
	for i, w := range want {
		if doc.Init[i].Value != w {
			t.Errorf("Expected value %q, got %q", w, doc.Init[i].Value)
		}
	}
}

func TestPlanDocument(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)

	doc, err := DecodePlanDocument([]byte("actions:\n  - {action: move, params: [l0, l1]}\n  - {action: move, params: [l1, l2]}\n"), FormatYAML)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	plan, err := doc.Build(r.Problem)
	if err != nil {
		t.Fatalf("failed to build: %v", err)
	}
	if plan.String() != planFromText(t, r.Problem, "move(l0, l1)\nmove(l1, l2)\n").String() {
		t.Errorf("Expected YAML and text plans to agree, got %s", plan)
	}
	if !reflect.DeepEqual(PlanDocumentFrom(plan), doc) {
		t.Errorf("Expected PlanDocumentFrom to invert Build, got %+v", PlanDocumentFrom(plan))
	}

	bad := []PlanDocument{
		{Actions: []PlanStepDecl{{Action: "fly", Params: []string{"l0"}}}},
		{Actions: []PlanStepDecl{{Action: "move", Params: []string{"l0", "l7"}}}},
		{Actions: []PlanStepDecl{{Action: "move", Params: []string{"l0"}}}},
	}
	for i, d := range bad {
		if _, err := d.Build(r.Problem); err == nil {
			t.Errorf("Expected plan %d to be rejected", i)
		}
	}
}

func planFromText(t *testing.T, p *model.Problem, text string) *model.SequentialPlan {
	t.Helper()
	doc, err := ParsePlanText([]byte(text))
	if err != nil {
		t.Fatalf("failed to parse plan text: %v", err)
	}
	plan, err := doc.Build(p)
	if err != nil {
		t.Fatalf("failed to build plan: %v", err)
	}
	return plan
}

func TestParsePlanText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []PlanStepDecl
		wantErr bool
	}{
		{
			name: "call syntax",
			text: "move(l0, l1)\nmove(l1,l2)\n",
			want: []PlanStepDecl{{Action: "move", Params: []string{"l0", "l1"}}, {Action: "move", Params: []string{"l1", "l2"}}},
		},
		{
			name: "space separated with comments",
			text: "; plan found\n\n# step one\nmove l0 l1\nwait\n",
			want: []PlanStepDecl{{Action: "move", Params: []string{"l0", "l1"}}, {Action: "wait", Params: []string{}}},
		},
		{
			name: "no parameters",
			text: "wait()\n",
			want: []PlanStepDecl{{Action: "wait", Params: []string{}}},
		},
		{name: "unbalanced", text: "move(l0, l1\n", wantErr: true},
		{name: "missing name", text: "(l0)\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParsePlanText([]byte(tt.text))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePlanText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(doc.Actions, tt.want) {
				t.Errorf("Expected %+v, got %+v", tt.want, doc.Actions)
			}
		})
	}
}
