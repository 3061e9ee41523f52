package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/grounding"
)

type groundOutput struct {
	Problem string   `json:"problem"`
	Engine  string   `json:"engine"`
	Lifted  int      `json:"lifted_actions"`
	Ground  int      `json:"ground_actions"`
	Actions []string `json:"actions"`
}

func newGroundCommand() *cobra.Command {
	var (
		pruneStatic bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "ground PROBLEM",
		Short: "Ground a problem into parameterless actions",
		Long: `Instantiate every action of a problem over its parameter domains.

Instances whose preconditions simplify to false are dropped. With
--prune-static, instances requiring a static fluent that is initially false
are dropped as well.`,
		Example: `  # Ground with static pruning
  planforge ground robot.yaml --prune-static

  # Fail if more than 1000 parameter tuples would be enumerated
  planforge ground robot.yaml --limit 1000`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()

			p, err := a.loadProblem(ctx, args[0])
			if err != nil {
				return err
			}

			params := engine.Params{
				"limit":        strconv.Itoa(limit),
				"prune_static": strconv.FormatBool(pruneStatic),
			}
			res, err := a.selector.Compile(ctx, p, engine.CompilationGrounding, engine.ByName(grounding.Name, params))
			if err != nil {
				return err
			}

			out := groundOutput{
				Problem: p.Name(),
				Engine:  res.Engine,
				Lifted:  len(p.Actions()),
				Actions: []string{},
			}
			for _, act := range res.Problem.Actions() {
				out.Actions = append(out.Actions, act.Name())
			}
			out.Ground = len(out.Actions)

			if jsonOutput {
				return a.printJSON(out)
			}
			a.printf("grounded %s: %d lifted actions, %d ground actions\n", out.Problem, out.Lifted, out.Ground)
			for _, name := range out.Actions {
				a.printf("  %s\n", name)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&pruneStatic, "prune-static", false, "drop instances that need an initially false static fluent")
	cmd.Flags().IntVar(&limit, "limit", grounding.DefaultLimit, "maximum number of parameter tuples")

	return cmd
}
