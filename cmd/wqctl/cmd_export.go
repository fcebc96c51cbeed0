package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/water-quality-server/internal/app"
	"github.com/water-quality-server/internal/guideline"
	"github.com/water-quality-server/internal/trends"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var (
		location string
		days     int
		format   string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a location's measurement history to CSV or Excel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, ext, err := trends.ContentType(format)
			if err != nil {
				return err
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := root.logger()

			repo, err := app.OpenRepository(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			analyzer := trends.NewAnalyzer(repo, guideline.Default(), logger)
			records, err := analyzer.HistoricalData(cmd.Context(), location, days)
			if err != nil {
				return err
			}
			data, err := analyzer.Export(records, format)
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("%s_water_quality.%s", location, ext)
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", len(records), output)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&location, "location", "l", "", "sampling location (required)")
	f.IntVar(&days, "days", trends.DefaultDays, "history window in days")
	f.StringVar(&format, "format", "csv", "csv or excel")
	f.StringVarP(&output, "output", "o", "", "output file (default: <location>_water_quality.<ext>)")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}
