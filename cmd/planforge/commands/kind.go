package commands

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/planforge/pkg/capability"
	"github.com/openfroyo/planforge/pkg/engine"
)

type kindOutput struct {
	Problem  string          `json:"problem"`
	Kind     capability.Kind `json:"kind"`
	Planners []string        `json:"planners"`
}

func newKindCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kind PROBLEM",
		Short: "Show the features a problem uses",
		Long: `Compute the problem kind, the set of modeling features the problem uses,
and list the registered planners able to solve it, best first.`,
		Example: `  planforge kind robot.yaml
  planforge kind robot.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			p, err := a.loadProblem(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			kind := p.Kind()
			out := kindOutput{Problem: p.Name(), Kind: kind, Planners: []string{}}
			for _, reg := range a.catalog.Registry().Candidates() {
				if reg.Supports(kind, engine.ModeOneshotPlanner) {
					out.Planners = append(out.Planners, reg.Name)
				}
			}

			if jsonOutput {
				return a.printJSON(out)
			}

			a.printf("problem: %s\n", out.Problem)
			byCategory := kind.ByCategory()
			categories := make([]string, 0, len(byCategory))
			for c := range byCategory {
				categories = append(categories, string(c))
			}
			sort.Strings(categories)
			for _, c := range categories {
				features := byCategory[capability.Category(c)]
				names := make([]string, len(features))
				for i, f := range features {
					names[i] = string(f)
				}
				a.printf("  %s: %s\n", c, strings.Join(names, ", "))
			}
			if len(out.Planners) == 0 {
				a.printf("planners: none\n")
			} else {
				a.printf("planners: %s\n", strings.Join(out.Planners, ", "))
			}
			return nil
		}),
	}
	return cmd
}
