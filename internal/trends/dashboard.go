package trends

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/water-quality-server/internal/domain"
)

// Dashboard kinds
const (
	KindOverview   = "overview"
	KindParameter  = "parameter"
	KindComparison = "comparison"
)

// maxComparison bounds the number of locations fetched in parallel.
const maxComparison = 10

func (a *Analyzer) series(param string, records []domain.HistoryRecord) domain.Series {
	s := domain.Series{Parameter: param, Points: make([]domain.SeriesPoint, 0, len(records))}
	if g, ok := a.table.Lookup(param); ok {
		band := g.Range
		s.Band = &band
		s.Unit = g.Unit
	}
	for _, r := range records {
		v, _ := r.Measurement.Value(param)
		s.Points = append(s.Points, domain.SeriesPoint{Timestamp: r.Measurement.Timestamp, Value: v})
	}
	return s
}

// CreateOverviewDashboard returns every parameter series for a location with
// the report summary.
func (a *Analyzer) CreateOverviewDashboard(ctx context.Context, location string, days int) (*domain.Dashboard, error) {
	records, err := a.HistoricalData(ctx, location, days)
	if err != nil {
		return nil, err
	}

	report := a.report(location, days, records)
	d := &domain.Dashboard{
		Kind:        KindOverview,
		Locations:   []string{location},
		Days:        days,
		Summary:     report.Parameters,
		GeneratedAt: report.GeneratedAt,
	}
	for _, param := range domain.FeatureOrder {
		d.Series = append(d.Series, a.series(param, records))
	}
	return d, nil
}

// CreateParameterDashboard returns one parameter's series and summary.
// Aliases are accepted.
func (a *Analyzer) CreateParameterDashboard(ctx context.Context, location, parameter string, days int) (*domain.Dashboard, error) {
	param, ok := domain.CanonicalParameter(parameter)
	if !ok {
		return nil, domain.NewValidationError("parameter", domain.ErrUnknownParameter.Error(), parameter)
	}
	records, err := a.HistoricalData(ctx, location, days)
	if err != nil {
		return nil, err
	}

	d := &domain.Dashboard{
		Kind:        KindParameter,
		Locations:   []string{location},
		Days:        days,
		Series:      []domain.Series{a.series(param, records)},
		GeneratedAt: a.now(),
	}
	if len(records) > 0 {
		d.Summary = []domain.ParameterTrend{a.parameterTrend(param, records)}
	}
	return d, nil
}

// CreateComparisonDashboard builds one report per location concurrently.
// Reports keep the order of the requested locations.
func (a *Analyzer) CreateComparisonDashboard(ctx context.Context, locations []string, days int) (*domain.Dashboard, error) {
	locs := uniqueLocations(locations)
	if len(locs) == 0 {
		return nil, domain.NewValidationError("locations", "at least one location is required", locations)
	}
	if len(locs) > maxComparison {
		return nil, domain.NewValidationError("locations", fmt.Sprintf("at most %d locations can be compared", maxComparison), len(locs))
	}

	reports := make([]domain.TrendReport, len(locs))
	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range locs {
		g.Go(func() error {
			r, err := a.GenerateReport(gctx, loc, days)
			if err != nil {
				return err
			}
			reports[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.Dashboard{
		Kind:        KindComparison,
		Locations:   locs,
		Days:        days,
		Reports:     reports,
		GeneratedAt: a.now(),
	}, nil
}

func uniqueLocations(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
