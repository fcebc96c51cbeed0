package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
	"github.com/water-quality-server/internal/service"
)

type recommendOptions struct {
	set      map[string]string
	file     string
	asJSON   bool
	catalog  string
	readings map[string]float64
}

func newRecommendCmd(root *rootOptions) *cobra.Command {
	opts := &recommendOptions{}

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print a remediation plan for a set of readings",
		Long: "Grades each reading against the guideline catalog and prints the\n" +
			"prioritized plan. Nothing is predicted or stored.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecommend(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringToStringVar(&opts.set, "set", nil, "readings as name=value pairs, aliases accepted (e.g. pH=9.2,D.O=4.1)")
	f.StringVarP(&opts.file, "file", "f", "", "JSON object of readings")
	f.BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")
	f.StringVar(&opts.catalog, "guidelines", "", "guideline catalog YAML (default: built-in)")
	cmd.MarkFlagsMutuallyExclusive("set", "file")
	cmd.MarkFlagsOneRequired("set", "file")
	return cmd
}

func (o *recommendOptions) parse() error {
	o.readings = make(map[string]float64)
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return fmt.Errorf("read readings: %w", err)
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse readings: %w", err)
		}
		for name, v := range raw {
			f, err := domain.DecodeNumber(v)
			if err == nil {
				o.readings[name] = f
				continue
			}
			if _, ok := domain.CanonicalParameter(name); ok {
				o.readings[name] = math.NaN()
			}
		}
	}
	for name, v := range o.set {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("reading %s: %q is not a number", name, v)
		}
		o.readings[name] = f
	}
	if len(o.readings) == 0 {
		return fmt.Errorf("no numeric readings given")
	}
	return nil
}

func runRecommend(cmd *cobra.Command, root *rootOptions, opts *recommendOptions) error {
	if err := opts.parse(); err != nil {
		return err
	}
	table, err := guideline.Load(opts.catalog)
	if err != nil {
		return err
	}

	assembler := service.NewRecommendationAssembler(root.logger(), table)
	assembly := assembler.Assemble(domain.ReadingsFrom(opts.readings))

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(assembly.Plan)
	}
	printPlan(out, assembly)
	return nil
}

func printPlan(out io.Writer, a *service.Assembly) {
	if a.Plan.Len() == 0 {
		fmt.Fprintln(out, "All readings are within guideline ranges.")
	}
	for _, p := range domain.Priorities {
		items := *a.Plan.Tier(p)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s:\n", p)
		for _, item := range items {
			fmt.Fprintf(out, "  - %s\n", item)
		}
	}
	for _, o := range a.Outcomes {
		switch o.Status {
		case service.OutcomeNoGuideline:
			fmt.Fprintf(out, "skipped %s=%g: no guideline\n", o.Parameter, o.Value)
		case service.OutcomeInvalid:
			fmt.Fprintf(out, "skipped %s=%g: invalid value\n", o.Parameter, o.Value)
		}
	}
}
