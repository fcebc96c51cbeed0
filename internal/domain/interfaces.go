package domain

import (
	"context"
	"time"
)

// Predictor classifies a feature set as potable or not. Implementations must
// be safe for concurrent use and must return an error, never a default
// verdict, on malformed input.
type Predictor interface {
	Predict(ctx context.Context, features Features) (Verdict, error)
	ModelVersion() string
}

// AssessmentWriter creates records inside one repository transaction. Each
// create fills in the server-assigned ID and Timestamp.
type AssessmentWriter interface {
	CreateMeasurement(ctx context.Context, m *Measurement) error
	CreatePrediction(ctx context.Context, p *Prediction) error
	CreateRecommendation(ctx context.Context, r *Recommendation) error
}

// Repository persists measurements and their dependent records.
type Repository interface {
	// WithinTx runs fn in a transaction that commits when fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, w AssessmentWriter) error) error

	GetMeasurement(ctx context.Context, id int64) (*Measurement, error)
	ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]*Measurement, error)
	RecentMeasurements(ctx context.Context, since time.Time, location string) ([]*Measurement, error)
	PredictionsByMeasurement(ctx context.Context, measurementID int64) ([]*Prediction, error)
	RecommendationsByMeasurement(ctx context.Context, measurementID int64, priority Priority) ([]*Recommendation, error)
	UpdateRecommendation(ctx context.Context, id int64, update RecommendationUpdate) (*Recommendation, error)
	DeleteMeasurement(ctx context.Context, id int64) error
	// History returns measurements for a location since a time, oldest first,
	// each paired with its first prediction when one exists.
	History(ctx context.Context, location string, since time.Time) ([]HistoryRecord, error)

	Health(ctx context.Context) error
	Close() error
}

// HistoryRecord is one stored measurement with its verdict, if any.
type HistoryRecord struct {
	Measurement *Measurement
	Prediction  *Prediction
}

// TrendReporter produces historical reports and dashboards for locations.
type TrendReporter interface {
	GenerateReport(ctx context.Context, location string, days int) (*TrendReport, error)
	CreateOverviewDashboard(ctx context.Context, location string, days int) (*Dashboard, error)
	CreateParameterDashboard(ctx context.Context, location, parameter string, days int) (*Dashboard, error)
	CreateComparisonDashboard(ctx context.Context, locations []string, days int) (*Dashboard, error)
	HistoricalData(ctx context.Context, location string, days int) ([]HistoryRecord, error)
	Export(records []HistoryRecord, format string) ([]byte, error)
}

// Publisher fans assessment reports out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, report *AssessmentReport) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetPredictorConfig() *PredictorConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
