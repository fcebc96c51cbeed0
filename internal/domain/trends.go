package domain

import "time"

// TrendDirection summarises the fitted slope of a parameter series.
type TrendDirection string

const (
	TrendIncreasing   TrendDirection = "increasing"
	TrendDecreasing   TrendDirection = "decreasing"
	TrendStable       TrendDirection = "stable"
	TrendInsufficient TrendDirection = "insufficient_data"
)

// ParameterTrend holds descriptive statistics for one parameter series.
type ParameterTrend struct {
	Parameter     string         `json:"parameter"`
	Count         int            `json:"count"`
	Mean          float64        `json:"mean"`
	StdDev        float64        `json:"std_dev"`
	Min           float64        `json:"min"`
	Max           float64        `json:"max"`
	Latest        float64        `json:"latest"`
	SlopePerDay   float64        `json:"slope_per_day"`
	Trend         TrendDirection `json:"trend"`
	Exceedances   int            `json:"exceedances"`
	ExceedancePct float64        `json:"exceedance_pct"`
}

// TrendReport is the historical summary for a location.
type TrendReport struct {
	Location    string           `json:"location"`
	Days        int              `json:"days"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	SampleCount int              `json:"sample_count"`
	PotableRate *float64         `json:"potable_rate,omitempty"`
	Parameters  []ParameterTrend `json:"parameters"`
	Alerts      []string         `json:"alerts"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// SeriesPoint is one timestamped value.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is a named time series plus its guideline band, when one exists.
type Series struct {
	Parameter string        `json:"parameter"`
	Unit      string        `json:"unit,omitempty"`
	Band      *Range        `json:"acceptable_range,omitempty"`
	Points    []SeriesPoint `json:"points"`
}

// Dashboard is the data backing a rendered dashboard. Layout is the client's
// concern.
type Dashboard struct {
	Kind        string           `json:"kind"`
	Locations   []string         `json:"locations"`
	Days        int              `json:"days"`
	Series      []Series         `json:"series,omitempty"`
	Summary     []ParameterTrend `json:"summary,omitempty"`
	Reports     []TrendReport    `json:"reports,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Export formats accepted by TrendReporter.Export.
const (
	ExportCSV   = "csv"
	ExportExcel = "excel"
)
