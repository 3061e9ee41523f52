package commands

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit      int
		engineName string
		since      time.Duration
		prune      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recorded engine runs",
		Long: `Show the engine invocations recorded in the run history database, newest
first. With a run ID, show that run including its plan.`,
		Example: `  # Last 10 runs of one engine
  planforge history --db runs.db --limit 10 --engine native-bfs

  # One run with its plan
  planforge history --db runs.db 3f2c...

  # Delete runs older than a week
  planforge history --db runs.db --prune 168h`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if a.store == nil {
				return errors.New("no run history configured: set --db or PLANFORGE_DB")
			}

			if prune > 0 {
				n, err := a.store.DeleteRunsBefore(ctx, time.Now().Add(-prune))
				if err != nil {
					return err
				}
				a.printf("deleted %d runs\n", n)
				return nil
			}

			if len(args) == 1 {
				run, err := a.store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return a.printJSON(run)
				}
				printRun(a, run)
				for i, step := range run.Plan {
					a.printf("  %3d. %s\n", i+1, step)
				}
				return nil
			}

			filter := stores.RunFilter{Engine: engineName, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			runs, err := a.store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				if runs == nil {
					runs = []*engine.RunRecord{}
				}
				return a.printJSON(runs)
			}
			for _, run := range runs {
				printRun(a, run)
			}
			return nil
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", stores.DefaultListLimit, "maximum number of runs")
	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "only runs of this engine")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs started within this duration")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this duration")

	return cmd
}

func printRun(a *app, run *engine.RunRecord) {
	status := run.Status
	if run.Error != "" {
		status = "ERROR: " + run.Error
	}
	a.printf("%s  %s  %-16s %-24s %-20s %s\n",
		run.StartedAt.Format(time.RFC3339), run.ID, run.Mode, run.Engine, run.Problem, status)
}
