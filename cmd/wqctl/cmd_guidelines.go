package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
)

func newGuidelinesCmd(_ *rootOptions) *cobra.Command {
	var (
		catalog   string
		parameter string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "guidelines",
		Short: "Print the guideline catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := guideline.Load(catalog)
			if err != nil {
				return err
			}

			entries := table.All()
			if parameter != "" {
				g, ok := table.Lookup(parameter)
				if !ok {
					return fmt.Errorf("no guideline for %q; known: %s", parameter, strings.Join(table.Parameters(), ", "))
				}
				entries = []*domain.ParameterGuideline{g}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PARAMETER\tUNIT\tMIN\tMAX\tLOW TIERS\tHIGH TIERS")
			for _, g := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%s\t%s\n",
					g.Parameter, g.Unit, g.Range.Min, g.Range.Max,
					tiers(g.Severity[domain.DirectionLow]), tiers(g.Severity[domain.DirectionHigh]))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if parameter != "" {
				printMeasures(cmd, entries[0])
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&catalog, "guidelines", "", "guideline catalog YAML (default: built-in)")
	f.StringVarP(&parameter, "parameter", "p", "", "show one parameter with its measures")
	f.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func tiers(ts []domain.SeverityThreshold) string {
	if len(ts) == 0 {
		return "-"
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = fmt.Sprintf("%s@%g", t.Level, t.Threshold)
	}
	return strings.Join(parts, " ")
}

func printMeasures(cmd *cobra.Command, g *domain.ParameterGuideline) {
	out := cmd.OutOrStdout()
	dirs := make([]string, 0, len(g.Measures))
	for d := range g.Measures {
		dirs = append(dirs, string(d))
	}
	sort.Strings(dirs)

	for _, d := range dirs {
		byPriority := g.Measures[domain.Direction(d)]
		fmt.Fprintf(out, "\n%s:\n", d)
		for _, p := range domain.Priorities {
			for _, m := range byPriority[p] {
				fmt.Fprintf(out, "  [%s] %s\n", p, m)
			}
		}
	}
}
