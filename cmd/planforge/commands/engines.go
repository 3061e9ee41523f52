package commands

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

type engineOutput struct {
	Name        string              `json:"name"`
	Priority    int                 `json:"priority"`
	Source      string              `json:"source"`
	Description string              `json:"description,omitempty"`
	Modes       map[string][]string `json:"modes"`
}

func newEnginesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List registered engines",
		Long: `List the builtin engines and those loaded from the engine manifest
directory, in selection order.`,
		Example: `  planforge engines
  planforge engines --engines-dir ./engines --json`,
		Args: cobra.NoArgs,
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			var out []engineOutput
			for _, reg := range a.catalog.Registry().Candidates() {
				e := engineOutput{
					Name:        reg.Name,
					Priority:    reg.Priority,
					Source:      reg.Source,
					Description: reg.Description,
					Modes:       make(map[string][]string, len(reg.Modes)),
				}
				for mode, kind := range reg.Modes {
					e.Modes[string(mode)] = kind.Strings()
				}
				out = append(out, e)
			}

			if jsonOutput {
				return a.printJSON(out)
			}
			for _, e := range out {
				modes := make([]string, 0, len(e.Modes))
				for m := range e.Modes {
					modes = append(modes, m)
				}
				sort.Strings(modes)
				a.printf("%-28s priority=%-4d modes=%s source=%s\n", e.Name, e.Priority, strings.Join(modes, ","), e.Source)
				if verbose {
					if e.Description != "" {
						a.printf("    %s\n", e.Description)
					}
					for _, m := range modes {
						a.printf("    %s: %s\n", m, strings.Join(e.Modes[m], ", "))
					}
				}
			}
			return nil
		}),
	}
	return cmd
}
