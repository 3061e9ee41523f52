package config

import (
	"testing"

	"github.com/openfroyo/planforge/pkg/model"
	"github.com/openfroyo/planforge/pkg/model/samples"
)

func batteryRobot(t *testing.T) *samples.Battery {
	t.Helper()
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	b, err := samples.AddBattery(r, 80, map[samples.Edge]float64{{From: 0, To: 1}: 10})
	if err != nil {
		t.Fatalf("failed to add battery: %v", err)
	}
	return b
}

func TestParseExpression(t *testing.T) {
	b := batteryRobot(t)
	params := b.Move.Parameters()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"parameter application", "(robot_at ?l_from)", "(robot_at ?l_from)"},
		{"connectives", "(and (robot_at l0) (not (robot_at l1)))", "(and (robot_at l0) (not (robot_at l1)))"},
		{"greater or equal is swapped", "(>= (battery) 10)", "(<= 10 (battery))"},
		{"greater than is swapped", "(> battery 1.5)", "(< 1.5 (battery))"},
		{"bare zero-arity fluent", "battery", "(battery)"},
		{"equality", "(= ?l_from ?l_to)", "(= ?l_from ?l_to)"},
		{"arithmetic", "(- (battery) (consumption ?l_from ?l_to))", "(- (battery) (consumption ?l_from ?l_to))"},
		{"real keeps its point", "3.0", "3.0"},
		{"negative int", "-1", "-1"},
		{"exists", "(exists (?x - Location) (robot_at ?x))", "(exists (?x - Location) (robot_at ?x))"},
		{"forall with two variables", "(forall (?x ?y - Location) (implies (connected ?x ?y) (connected ?y ?x)))", "(forall (?x - Location ?y - Location) (implies (connected ?x ?y) (connected ?y ?x)))"},
		{"variable shadows parameter", "(exists (?l_from - Location) (robot_at ?l_from))", "(exists (?l_from - Location) (robot_at ?l_from))"},
		{"comments and spacing", "(or ; either\n  (robot_at l0)\n  (robot_at l2))", "(or (robot_at l0) (robot_at l2))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseExpression(b.Problem, tt.src, params...)
			if err != nil {
				t.Fatalf("failed to parse %q: %v", tt.src, err)
			}
			if got := FormatExpression(e); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}

			// The rendering reads back to the same expression.
			again, err := ParseExpression(b.Problem, FormatExpression(e), params...)
			if err != nil {
				t.Fatalf("failed to reparse: %v", err)
			}
			if again.String() != e.String() {
				t.Errorf("Expected round trip to preserve %s, got %s", e, again)
			}
		})
	}
}

func TestParseExpressionBindsParameters(t *testing.T) {
	b := batteryRobot(t)
	e, err := ParseExpression(b.Problem, "(robot_at ?l_to)", b.Move.Parameters()...)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if e.Arg(0).Parameter() != b.Move.Parameter("l_to") {
		t.Error("Expected ?l_to to resolve to the action parameter")
	}
}

func TestParseExpressionErrors(t *testing.T) {
	b := batteryRobot(t)

	tests := []struct {
		name string
		src  string
	}{
		{"empty", "  "},
		{"unclosed", "(and (robot_at l0)"},
		{"stray close", "(robot_at l0))"},
		{"trailing input", "(robot_at l0) (robot_at l1)"},
		{"fluent arity", "(robot_at)"},
		{"bare fluent with parameters", "robot_at"},
		{"unknown fluent", "(teleported l0)"},
		{"unknown object", "(robot_at l9)"},
		{"unbound name", "(robot_at ?nowhere)"},
		{"not arity", "(not (robot_at l0) (robot_at l1))"},
		{"variable without question mark", "(exists (x - Location) (robot_at x))"},
		{"untyped variable", "(exists (?x) (robot_at ?x))"},
		{"unknown variable type", "(exists (?x - Room) true)"},
		{"empty list", "()"},
		{"list as operator", "((robot_at l0) l1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseExpression(b.Problem, tt.src); err == nil {
				t.Errorf("Expected error parsing %q", tt.src)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	p := model.NewProblem("types")
	loc := model.UserType("Location", nil)
	if err := p.AddType(loc); err != nil {
		t.Fatalf("failed to add type: %v", err)
	}

	tests := []struct {
		src     string
		want    string
		wantErr bool
	}{
		{src: "bool", want: "bool"},
		{src: "int", want: "int"},
		{src: "real", want: "real"},
		{src: "int[0, 10]", want: "int[0, 10]"},
		{src: "int[0,10]", want: "int[0, 10]"},
		{src: "real[0, 1.5]", want: "real[0, 1.5]"},
		{src: "Location", want: "Location"},
		{src: "int[5, 1]", wantErr: true},
		{src: "bool[0, 1]", wantErr: true},
		{src: "int[a, b]", wantErr: true},
		{src: "int[1]", wantErr: true},
		{src: "Room", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			typ, err := ParseType(p, tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := FormatType(typ); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
