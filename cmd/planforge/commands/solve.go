package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
)

type solveOutput struct {
	Problem    string            `json:"problem"`
	Engine     string            `json:"engine"`
	Status     engine.Status     `json:"status"`
	Plan       []string          `json:"plan"`
	Grounded   bool              `json:"grounded,omitempty"`
	Valid      *bool             `json:"valid,omitempty"`
	Diagnostic string            `json:"diagnostic,omitempty"`
	Metrics    map[string]string `json:"metrics,omitempty"`
	Log        string            `json:"log,omitempty"`
	Duration   string            `json:"duration"`
}

func newSolveCommand() *cobra.Command {
	var (
		engines  []string
		params   []string
		timeout  time.Duration
		ground   bool
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "solve PROBLEM",
		Short: "Solve a planning problem",
		Long: `Solve a planning problem with one engine or a race of engines.

Without --engine the highest-priority engine whose capabilities cover the
problem kind is used. One --engine selects that engine; several race in
parallel and the first definitive answer wins.`,
		Example: `  # Let the selector choose an engine
  planforge solve robot.yaml

  # Race two planners with a 30s limit
  planforge solve robot.yaml --engine fast-downward --engine native-bfs --timeout 30s

  # Ground first, then validate the plan found
  planforge solve robot.yaml --ground --validate --json`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()

			engineParams, err := engine.ParseParams(params)
			if err != nil {
				return err
			}

			p, err := a.loadProblem(ctx, args[0])
			if err != nil {
				return err
			}

			req := engine.Request{}
			switch len(engines) {
			case 0:
				if len(engineParams) > 0 {
					req.Params = []engine.Params{engineParams}
				}
			case 1:
				req = engine.ByName(engines[0], engineParams)
			default:
				all := make([]engine.Params, len(engines))
				for i := range all {
					all[i] = engineParams
				}
				req = engine.Parallel(engines, all...)
			}

			target := p
			var compiled *engine.CompilerResult
			if ground {
				compiled, err = a.selector.Compile(ctx, p, engine.CompilationGrounding, engine.Request{})
				if err != nil {
					return fmt.Errorf("failed to ground problem: %w", err)
				}
				target = compiled.Problem
				a.logger.WithProblem(p.Name()).
					WithField("actions", len(target.Actions())).
					Debug("problem grounded")
			}

			res, err := a.selector.Solve(ctx, target, req, engine.SolveOptions{Timeout: timeout})
			if err != nil {
				return err
			}

			plan := res.Plan
			if compiled != nil && plan != nil {
				plan, err = compiled.LiftPlan(plan)
				if err != nil {
					return fmt.Errorf("failed to lift plan: %w", err)
				}
			}

			out := solveOutput{
				Problem:  p.Name(),
				Engine:   res.Engine,
				Status:   res.Status,
				Plan:     engine.PlanSteps(plan),
				Grounded: compiled != nil,
				Metrics:  res.Metrics,
				Log:      res.Log,
				Duration: res.Duration.String(),
			}

			if validate && plan != nil {
				vr, err := a.selector.Validate(ctx, p, plan, engine.Request{})
				if err != nil {
					return fmt.Errorf("failed to validate plan: %w", err)
				}
				out.Valid = &vr.Valid
				out.Diagnostic = vr.Diagnostic
			}

			if jsonOutput {
				if err := a.printJSON(out); err != nil {
					return err
				}
			} else {
				printSolve(a, &out, plan)
			}

			if !res.Status.IsSolved() {
				return fmt.Errorf("no plan found: %s", res.Status)
			}
			if out.Valid != nil && !*out.Valid {
				return fmt.Errorf("plan is invalid: %s", out.Diagnostic)
			}
			return nil
		}),
	}

	cmd.Flags().StringSliceVarP(&engines, "engine", "e", nil, "engine name; repeat to race engines")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "engine parameter key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock limit (0 means none)")
	cmd.Flags().BoolVar(&ground, "ground", false, "ground the problem before solving")
	cmd.Flags().BoolVar(&validate, "validate", false, "validate the plan found")

	return cmd
}

func printSolve(a *app, out *solveOutput, plan *model.SequentialPlan) {
	a.printf("problem:  %s\n", out.Problem)
	a.printf("engine:   %s\n", out.Engine)
	a.printf("status:   %s\n", out.Status)
	a.printf("duration: %s\n", out.Duration)
	if out.Valid != nil {
		if *out.Valid {
			a.printf("valid:    yes\n")
		} else {
			a.printf("valid:    no (%s)\n", out.Diagnostic)
		}
	}
	if plan != nil {
		a.printf("plan (%d steps):\n", plan.Len())
		for i, step := range out.Plan {
			a.printf("  %3d. %s\n", i+1, step)
		}
	}
	if verbose && out.Log != "" {
		a.printf("log:\n  %s\n", strings.ReplaceAll(out.Log, "\n", "\n  "))
	}
}
