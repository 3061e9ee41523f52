package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/planforge/pkg/engines/pddl"
)

func newExportPDDLCommand() *cobra.Command {
	var (
		domainFile  string
		problemFile string
	)

	cmd := &cobra.Command{
		Use:   "export-pddl PROBLEM",
		Short: "Write a problem as PDDL",
		Long: `Write the PDDL domain and problem files an external planner would receive.

Without --domain and --problem both files are printed to standard output.`,
		Example: `  planforge export-pddl robot.yaml --domain domain.pddl --problem problem.pddl`,
		Args:    cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			p, err := a.loadProblem(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			files, err := pddl.Write(p)
			if err != nil {
				return fmt.Errorf("failed to write PDDL: %w", err)
			}

			if domainFile == "" && problemFile == "" {
				a.printf("%s\n%s", files.Domain, files.Problem)
				return nil
			}
			if domainFile == "" || problemFile == "" {
				return fmt.Errorf("--domain and --problem must be given together")
			}
			if err := os.WriteFile(domainFile, []byte(files.Domain), 0o644); err != nil {
				return fmt.Errorf("failed to write domain: %w", err)
			}
			if err := os.WriteFile(problemFile, []byte(files.Problem), 0o644); err != nil {
				return fmt.Errorf("failed to write problem: %w", err)
			}
			a.logger.WithField("domain", domainFile).WithField("problem", problemFile).Info("PDDL written")
			return nil
		}),
	}

	cmd.Flags().StringVar(&domainFile, "domain", "", "domain file to write")
	cmd.Flags().StringVar(&problemFile, "problem", "", "problem file to write")

	return cmd
}
