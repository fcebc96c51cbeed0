// Package repository persists assessments in Postgres or an embedded SQLite
// database.
package repository

import (
	"fmt"
	"strings"

	"github.com/water-quality-server/internal/domain"
)

const measurementColumns = `id, location, latitude, longitude, temperature, dissolved_oxygen, ph,
	conductivity, bod, nitrate, fecal_coliform, total_coliform, measured_at`

const recommendationColumns = `id, measurement_id, parameter, severity, priority, recommendation,
	estimated_cost, implementation_timeframe, created_at`

const predictionColumns = `id, measurement_id, is_potable, confidence, model_version, created_at`

// placeholder renders the n-th bind parameter (1-based).
type placeholder func(n int) string

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

// filterQuery builds the measurement listing query for a dialect.
func filterQuery(filter domain.MeasurementFilter, ph placeholder, ts func(t any) any) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Location != "" {
		args = append(args, filter.Location)
		where = append(where, "location = "+ph(len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, ts(*filter.StartDate))
		where = append(where, "measured_at >= "+ph(len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, ts(*filter.EndDate))
		where = append(where, "measured_at <= "+ph(len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + measurementColumns + " FROM water_quality_measurements")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, filter.Limit)
	b.WriteString(" ORDER BY id LIMIT " + ph(len(args)))
	args = append(args, filter.Skip)
	b.WriteString(" OFFSET " + ph(len(args)))
	return b.String(), args
}

// scanner is an interface for sql.Row, sql.Rows and pgx.Row
type scanner interface {
	Scan(dest ...any) error
}

func measurementDest(m *domain.Measurement, ts any) []any {
	return []any{
		&m.ID, &m.Location, &m.Latitude, &m.Longitude, &m.Temperature, &m.DissolvedOxygen, &m.PH,
		&m.Conductivity, &m.BOD, &m.Nitrate, &m.FecalColiform, &m.TotalColiform, ts,
	}
}

func measurementArgs(m *domain.Measurement, ts any) []any {
	return []any{
		m.Location, m.Latitude, m.Longitude, m.Temperature, m.DissolvedOxygen, m.PH,
		m.Conductivity, m.BOD, m.Nitrate, m.FecalColiform, m.TotalColiform, ts,
	}
}

func recommendationDest(r *domain.Recommendation, ts any) []any {
	return []any{
		&r.ID, &r.MeasurementID, &r.Parameter, &r.Severity, &r.Priority, &r.Recommendation,
		&r.EstimatedCost, &r.ImplementationTimeframe, ts,
	}
}

func predictionDest(p *domain.Prediction, ts any) []any {
	return []any{&p.ID, &p.MeasurementID, &p.IsPotable, &p.Confidence, &p.ModelVersion, ts}
}

const historyQueryTemplate = `
	SELECT m.id, m.location, m.latitude, m.longitude, m.temperature, m.dissolved_oxygen, m.ph,
		m.conductivity, m.bod, m.nitrate, m.fecal_coliform, m.total_coliform, m.measured_at,
		p.id, p.is_potable, p.confidence, p.model_version, p.created_at
	FROM water_quality_measurements m
	LEFT JOIN water_quality_predictions p ON p.id = (
		SELECT MIN(id) FROM water_quality_predictions WHERE measurement_id = m.id
	)
	WHERE m.location = %s AND m.measured_at >= %s
	ORDER BY m.measured_at, m.id`
