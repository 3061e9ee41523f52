package pddl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model/samples"
)

// TestHelperProcess is not a real test. It is re-executed by the tests
// below as a planner whose behavior is selected by the argument after
// "--". The remaining arguments are the domain, problem and plan paths.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 5 {
		fmt.Fprintln(os.Stderr, "usage: -- mode domain problem plan")
		os.Exit(2)
	}
	os.Exit(helperMain(args[1], args[2], args[3], args[4], args[5:]))
}

func helperMain(mode, domain, problem, plan string, extra []string) int {
	d, err := os.ReadFile(domain)
	if err != nil || !strings.HasPrefix(string(d), "(define (domain robot)") {
		fmt.Fprintln(os.Stderr, "bad domain file")
		return 1
	}
	if _, err := os.Stat(problem); err != nil {
		fmt.Fprintln(os.Stderr, "missing problem file")
		return 1
	}

	switch mode {
	case "plan-file":
		fmt.Println("Solution found!")
		return writePlan(plan, "(move l0 l1)\n(move l1 l2)\n; cost = 2 (unit cost)\n")
	case "stdout":
		fmt.Println("translating...")
		fmt.Println("0.000: (MOVE L0 L1) [1.000]")
		fmt.Println("1.000: (MOVE L1 L2) [1.000]")
	case "unsolvable":
		fmt.Println("Completely explored state space -- no solution!")
		return 12
	case "crash":
		fmt.Fprintln(os.Stderr, "fatal: out of memory")
		return 3
	case "garbage":
		return writePlan(plan, "(move l0 l1\n")
	case "nothing":
	case "hang":
		time.Sleep(time.Hour)
	case "sas-plan":
		return writePlan("sas_plan", "(move l0 l1)\n(move l1 l2)\n")
	case "params":
		if len(extra) != 1 || extra[0] != "--search=astar(lmcut())" {
			fmt.Fprintf(os.Stderr, "unexpected arguments %q\n", extra)
			return 1
		}
		return writePlan(plan, "(move l0 l1)\n(move l1 l2)\n")
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 2
	}
	return 0
}

func writePlan(path, text string) int {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func helperEngine(t *testing.T, mode string, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		Name:    "helper-" + mode,
		Command: []string{os.Args[0], "-test.run=TestHelperProcess", "--", mode, "{domain}", "{problem}", "{plan}"},
		Env:     append(os.Environ(), "GO_WANT_HELPER_PROCESS=1"),
		WorkDir: t.TempDir(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func TestSolveWithPlanner(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)

	tests := []struct {
		mode       string
		mutate     func(*Config)
		wantSource string
	}{
		{mode: "plan-file", wantSource: "file"},
		{mode: "stdout", wantSource: "stdout"},
		{
			mode:       "sas-plan",
			mutate:     func(c *Config) { c.PlanFile = "sas_plan" },
			wantSource: "file",
		},
		{
			mode: "params",
			mutate: func(c *Config) {
				c.Command = append(c.Command, "--search={search}")
				c.Params = engine.Params{"search": "astar(lmcut())"}
			},
			wantSource: "file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			e := helperEngine(t, tt.mode, tt.mutate)

			res, err := e.Solve(context.Background(), r.Problem, engine.SolveOptions{})
			if err != nil {
				t.Fatalf("failed to solve: %v", err)
			}
			if res.Status != engine.StatusSolvedSatisficing {
				t.Fatalf("Expected status SOLVED_SATISFICING, got %s (%s)", res.Status, res.Log)
			}
			if res.Plan.Len() != 2 || res.Plan.Actions()[1].String() != "move(l1, l2)" {
				t.Errorf("Expected two moves ending at l2, got %s", res.Plan)
			}
			if res.Metrics["plan_source"] != tt.wantSource {
				t.Errorf("Expected plan source %s, got %s", tt.wantSource, res.Metrics["plan_source"])
			}
		})
	}
}

func TestSolveOutcomes(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)

	tests := []struct {
		mode       string
		mutate     func(*Config)
		wantStatus engine.Status
		wantErr    error
		wantLog    string
	}{
		{mode: "unsolvable", wantStatus: engine.StatusUnsolvableIncompletely},
		{mode: "crash", wantStatus: engine.StatusInternalError, wantLog: "out of memory"},
		{mode: "garbage", wantErr: engine.ErrResultParsing},
		{mode: "nothing", wantErr: engine.ErrResultParsing},
		{
			mode: "unsolvable",
			mutate: func(c *Config) {
				c.UnsolvableMarkers = []string{"search exhausted"}
			},
			wantStatus: engine.StatusInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			e := helperEngine(t, tt.mode, tt.mutate)

			res, err := e.Solve(context.Background(), r.Problem, engine.SolveOptions{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected error %v, got %v (result %+v)", tt.wantErr, err, res)
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to solve: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s (%s)", tt.wantStatus, res.Status, res.Log)
			}
			if !strings.Contains(res.Log, tt.wantLog) {
				t.Errorf("Expected log to contain %q, got %q", tt.wantLog, res.Log)
			}
		})
	}
}

func TestSolveLaunchFailure(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	e := helperEngine(t, "nothing", func(c *Config) {
		c.Command = []string{filepath.Join(t.TempDir(), "missing-planner")}
	})

	_, err := e.Solve(context.Background(), r.Problem, engine.SolveOptions{})
	if engine.CodeOf(err) != engine.ErrCodeLaunchFailed {
		t.Errorf("Expected code %s, got %s (%v)", engine.ErrCodeLaunchFailed, engine.CodeOf(err), err)
	}
	if engine.ClassOf(err) != engine.ErrorClassInternal {
		t.Errorf("Expected class internal, got %s", engine.ClassOf(err))
	}
}

func TestSolveTimeout(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	e := helperEngine(t, "hang", nil)

	start := time.Now()
	res, err := e.Solve(context.Background(), r.Problem, engine.SolveOptions{Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to solve: %v", err)
	}
	if res.Status != engine.StatusTimeout {
		t.Errorf("Expected status TIMEOUT, got %s", res.Status)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Expected the planner to be killed promptly, took %v", elapsed)
	}
}

func TestSolveCancelled(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	e := helperEngine(t, "hang", nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := e.Solve(ctx, r.Problem, engine.SolveOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSolveRemovesWorkDir(t *testing.T) {
	r := samples.MustRobot(3, samples.Line(3), 0, 2)
	work := t.TempDir()
	e := helperEngine(t, "plan-file", func(c *Config) { c.WorkDir = work })

	if _, err := e.Solve(context.Background(), r.Problem, engine.SolveOptions{}); err != nil {
		t.Fatalf("failed to solve: %v", err)
	}
	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatalf("failed to read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected the per-solve directory to be removed, found %d entries", len(entries))
	}
}

func TestSolveUnsupported(t *testing.T) {
	r := samples.MustRobot(2, samples.Line(2), 0, 1)
	if _, err := samples.AddBattery(r, 100, nil); err != nil {
		t.Fatalf("failed to add battery: %v", err)
	}
	e := helperEngine(t, "plan-file", nil)

	_, err := e.Solve(context.Background(), r.Problem, engine.SolveOptions{})
	if !errors.Is(err, engine.ErrUnsupportedProblem) {
		t.Errorf("Expected ErrUnsupportedProblem, got %v", err)
	}
}

func TestExpand(t *testing.T) {
	got := Expand(
		[]string{"planner", "{domain}", "{problem}", "--plan={plan}", "--search={search}", "{unset}"},
		engine.Params{"search": "lama"},
		"/w/d.pddl", "/w/p.pddl", "/w/plan",
	)
	want := []string{"planner", "/w/d.pddl", "/w/p.pddl", "--plan=/w/plan", "--search=lama", "{unset}"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{Command: []string{"planner"}}); err == nil {
		t.Error("Expected an error for a missing name")
	}
	if _, err := New(Config{Name: "p"}); err == nil {
		t.Error("Expected an error for a missing command")
	}
}
