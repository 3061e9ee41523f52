package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	enginesDir string
	dbPath     string
	policyPath []string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "planforge",
		Short: "Planforge - planning engine integration",
		Long: `Planforge solves automated planning problems with interchangeable engines.

Features:
  - Problems in YAML, JSON, CUE or Starlark
  - Engine selection by name, by problem kind or as a parallel race
  - External PDDL planners, protocol runners over pipes or SSH, WASI modules
  - Plan validation and grounding
  - Selection policies (OPA/rego) and a SQLite run history`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands; they override PLANFORGE_* variables
	rootCmd.PersistentFlags().StringVar(&enginesDir, "engines-dir", "", "directory of engine manifests")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "run history database path")
	rootCmd.PersistentFlags().StringSliceVar(&policyPath, "policy", nil, "selection policy file or directory (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSolveCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGroundCommand())
	rootCmd.AddCommand(newKindCommand())
	rootCmd.AddCommand(newEnginesCommand())
	rootCmd.AddCommand(newExportPDDLCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
