package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/planforge/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	var engineName string

	cmd := &cobra.Command{
		Use:   "validate PROBLEM PLAN",
		Short: "Validate a plan against a problem",
		Long: `Validate a sequential plan against a problem.

The plan is a YAML, JSON or CUE plan document, or a text file with one
action instance per line such as "move(l0, l1)". The plan is simulated from
the initial state; the first inapplicable step or an unreached goal makes it
invalid.`,
		Example: `  # Validate a text plan
  planforge validate robot.yaml robot.plan

  # Validate with a specific engine and JSON output
  planforge validate robot.yaml plan.yaml --engine sequential-plan-validator --json`,
		Args: cobra.ExactArgs(2),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()

			p, err := a.loadProblem(ctx, args[0])
			if err != nil {
				return err
			}
			plan, err := a.loader.LoadPlan(ctx, args[1], p)
			if err != nil {
				return err
			}

			req := engine.Request{}
			if engineName != "" {
				req = engine.ByName(engineName, nil)
			}
			res, err := a.selector.Validate(ctx, p, plan, req)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := a.printJSON(res); err != nil {
					return err
				}
			} else if res.Valid {
				a.printf("plan is valid (%d steps, engine %s)\n", plan.Len(), res.Engine)
			} else {
				a.printf("plan is invalid: %s\n", res.Diagnostic)
			}

			if !res.Valid {
				return fmt.Errorf("plan is invalid: %s", res.Failure)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "validator engine name")

	return cmd
}
