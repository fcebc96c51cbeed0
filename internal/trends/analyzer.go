// Package trends summarises stored assessments over time: per-parameter
// statistics, dashboard data and CSV/Excel export.
package trends

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
)

const (
	// DefaultDays is the look-back window when a caller passes none.
	DefaultDays = 30
	// MaxDays bounds the look-back window.
	MaxDays = 3650

	// stableFraction is the share of the reference scale a series may drift
	// over the window and still count as stable.
	stableFraction = 0.1
	// lowPotableRate triggers a report alert.
	lowPotableRate = 0.5
)

// Analyzer implements domain.TrendReporter over a repository.
type Analyzer struct {
	repo   domain.Repository
	table  *guideline.Table
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyzer creates a trend analyzer.
func NewAnalyzer(repo domain.Repository, table *guideline.Table, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		repo:   repo,
		table:  table,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func checkWindow(location string, days int) error {
	if location == "" {
		return domain.NewValidationError("location", "is required", location)
	}
	if days <= 0 || days > MaxDays {
		return domain.NewValidationError("days", fmt.Sprintf("must be between 1 and %d", MaxDays), days)
	}
	return nil
}

// HistoricalData returns the stored measurements for a location over the
// last days, oldest first.
func (a *Analyzer) HistoricalData(ctx context.Context, location string, days int) ([]domain.HistoryRecord, error) {
	if err := checkWindow(location, days); err != nil {
		return nil, err
	}
	since := a.now().Add(-time.Duration(days) * 24 * time.Hour)
	records, err := a.repo.History(ctx, location, since)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", location, err)
	}
	return records, nil
}

// GenerateReport computes per-parameter statistics for a location.
func (a *Analyzer) GenerateReport(ctx context.Context, location string, days int) (*domain.TrendReport, error) {
	records, err := a.HistoricalData(ctx, location, days)
	if err != nil {
		return nil, err
	}
	return a.report(location, days, records), nil
}

func (a *Analyzer) report(location string, days int, records []domain.HistoryRecord) *domain.TrendReport {
	now := a.now()
	report := &domain.TrendReport{
		Location:    location,
		Days:        days,
		From:        now.Add(-time.Duration(days) * 24 * time.Hour),
		To:          now,
		SampleCount: len(records),
		Parameters:  []domain.ParameterTrend{},
		Alerts:      []string{},
		GeneratedAt: now,
	}
	if len(records) == 0 {
		return report
	}

	var potable, predicted int
	for _, r := range records {
		if r.Prediction == nil {
			continue
		}
		predicted++
		if r.Prediction.IsPotable {
			potable++
		}
	}
	if predicted > 0 {
		rate := float64(potable) / float64(predicted)
		report.PotableRate = &rate
		if rate < lowPotableRate {
			report.Alerts = append(report.Alerts,
				fmt.Sprintf("only %.0f%% of assessed samples were potable", rate*100))
		}
	}

	for _, param := range domain.FeatureOrder {
		trend := a.parameterTrend(param, records)
		report.Parameters = append(report.Parameters, trend)

		g, ok := a.table.Lookup(param)
		if !ok {
			continue
		}
		if dir, out := g.DirectionOf(trend.Latest); out {
			report.Alerts = append(report.Alerts, fmt.Sprintf(
				"%s latest value %.2f is %s the acceptable range %.2f-%.2f",
				param, trend.Latest, describe(dir), g.Range.Min, g.Range.Max))
		}
	}

	a.logger.WithFields(logrus.Fields{
		"location": location,
		"days":     days,
		"samples":  len(records),
		"alerts":   len(report.Alerts),
	}).Debug("Generated trend report")
	return report
}

func describe(d domain.Direction) string {
	if d == domain.DirectionLow {
		return "below"
	}
	return "above"
}

// parameterTrend fits a least-squares line through the series with time in
// days since the first sample.
func (a *Analyzer) parameterTrend(param string, records []domain.HistoryRecord) domain.ParameterTrend {
	xs := make([]float64, 0, len(records))
	ys := make([]float64, 0, len(records))
	origin := records[0].Measurement.Timestamp
	for _, r := range records {
		v, _ := r.Measurement.Value(param)
		xs = append(xs, r.Measurement.Timestamp.Sub(origin).Hours()/24)
		ys = append(ys, v)
	}

	t := domain.ParameterTrend{
		Parameter: param,
		Count:     len(ys),
		Min:       floats.Min(ys),
		Max:       floats.Max(ys),
		Latest:    ys[len(ys)-1],
		Trend:     domain.TrendInsufficient,
	}

	var band *domain.Range
	if g, ok := a.table.Lookup(param); ok {
		band = &g.Range
		for _, v := range ys {
			if !g.Range.Contains(v) {
				t.Exceedances++
			}
		}
		t.ExceedancePct = 100 * float64(t.Exceedances) / float64(len(ys))
	}

	if len(ys) < 2 {
		t.Mean = ys[0]
		return t
	}
	t.Mean, t.StdDev = stat.MeanStdDev(ys, nil)

	span := xs[len(xs)-1] - xs[0]
	if span <= 0 {
		return t
	}
	_, t.SlopePerDay = stat.LinearRegression(xs, ys, nil, false)
	t.Trend = classify(t.SlopePerDay*span, scale(band, t.StdDev))
	return t
}

// scale is the reference magnitude a drift is compared against: the band
// width when there is one, otherwise the spread of the series.
func scale(band *domain.Range, stdDev float64) float64 {
	if band != nil && band.Max > band.Min {
		return band.Max - band.Min
	}
	return stdDev
}

func classify(change, scale float64) domain.TrendDirection {
	if math.Abs(change) <= stableFraction*scale || change == 0 {
		return domain.TrendStable
	}
	if change > 0 {
		return domain.TrendIncreasing
	}
	return domain.TrendDecreasing
}
