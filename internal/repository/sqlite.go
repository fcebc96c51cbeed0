package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

// sqliteTime is fixed width so text comparison orders chronologically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// SQLRepository implements domain.Repository on database/sql with the
// embedded SQLite dialect
type SQLRepository struct {
	db  *sql.DB
	log *logrus.Logger
	now func() time.Time
}

// NewSQLRepository creates a repository on an open database whose schema is
// already in place (see database.OpenSQLite)
func NewSQLRepository(db *sql.DB, logger *logrus.Logger) *SQLRepository {
	return &SQLRepository{
		db:  db,
		log: logger,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type sqlWriter struct {
	tx  *sql.Tx
	now func() time.Time
}

func (w *sqlWriter) CreateMeasurement(ctx context.Context, m *domain.Measurement) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = w.now()
	}
	m.Timestamp = m.Timestamp.UTC()

	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO water_quality_measurements (
			location, latitude, longitude, temperature, dissolved_oxygen, ph,
			conductivity, bod, nitrate, fecal_coliform, total_coliform, measured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		measurementArgs(m, formatTime(m.Timestamp))...)
	if err != nil {
		return fmt.Errorf("creating measurement: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (w *sqlWriter) CreatePrediction(ctx context.Context, p *domain.Prediction) error {
	p.Timestamp = w.now()
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO water_quality_predictions (measurement_id, is_potable, confidence, model_version, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.MeasurementID, p.IsPotable, p.Confidence, p.ModelVersion, formatTime(p.Timestamp))
	if err != nil {
		return fmt.Errorf("creating prediction: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (w *sqlWriter) CreateRecommendation(ctx context.Context, r *domain.Recommendation) error {
	r.Timestamp = w.now()
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO recommendations (
			measurement_id, parameter, severity, priority, recommendation,
			estimated_cost, implementation_timeframe, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MeasurementID, r.Parameter, string(r.Severity), string(r.Priority), r.Recommendation,
		r.EstimatedCost, r.ImplementationTimeframe, formatTime(r.Timestamp))
	if err != nil {
		return fmt.Errorf("creating recommendation: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// WithinTx runs fn in a transaction, rolling back on error
func (r *SQLRepository) WithinTx(ctx context.Context, fn func(context.Context, domain.AssessmentWriter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(ctx, &sqlWriter{tx: tx, now: r.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.WithError(rbErr).Warn("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanMeasurement(s scanner) (*domain.Measurement, error) {
	var (
		m  domain.Measurement
		ts string
	)
	if err := s.Scan(measurementDest(&m, &ts)...); err != nil {
		return nil, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("parsing measured_at: %w", err)
	}
	m.Timestamp = t
	return &m, nil
}

// GetMeasurement retrieves a measurement by its ID
func (r *SQLRepository) GetMeasurement(ctx context.Context, id int64) (*domain.Measurement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+measurementColumns+` FROM water_quality_measurements WHERE id = ?`, id)
	m, err := scanMeasurement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("measurement %d not found: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting measurement: %w", err)
	}
	return m, nil
}

// ListMeasurements lists measurements matching the filter in id order
func (r *SQLRepository) ListMeasurements(ctx context.Context, filter domain.MeasurementFilter) ([]*domain.Measurement, error) {
	query, args := filterQuery(filter, question, func(t any) any { return formatTime(t.(time.Time)) })
	return r.queryMeasurements(ctx, query, args...)
}

// RecentMeasurements lists measurements taken at or after since, newest first
func (r *SQLRepository) RecentMeasurements(ctx context.Context, since time.Time, location string) ([]*domain.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM water_quality_measurements
		WHERE measured_at >= ? AND (? = '' OR location = ?)
		ORDER BY measured_at DESC, id DESC`
	return r.queryMeasurements(ctx, query, formatTime(since), location, location)
}

func (r *SQLRepository) queryMeasurements(ctx context.Context, query string, args ...any) ([]*domain.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	out := []*domain.Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PredictionsByMeasurement lists predictions for a measurement in id order
func (r *SQLRepository) PredictionsByMeasurement(ctx context.Context, measurementID int64) ([]*domain.Prediction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+predictionColumns+` FROM water_quality_predictions
		WHERE measurement_id = ? ORDER BY id`, measurementID)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	out := []*domain.Prediction{}
	for rows.Next() {
		var (
			p  domain.Prediction
			ts string
		)
		if err := rows.Scan(predictionDest(&p, &ts)...); err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func scanRecommendation(s scanner) (*domain.Recommendation, error) {
	var (
		rec domain.Recommendation
		ts  string
	)
	if err := s.Scan(recommendationDest(&rec, &ts)...); err != nil {
		return nil, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.Timestamp = t
	return &rec, nil
}

// RecommendationsByMeasurement lists recommendations for a measurement in id
// order. An empty priority matches all tiers.
func (r *SQLRepository) RecommendationsByMeasurement(ctx context.Context, measurementID int64, priority domain.Priority) ([]*domain.Recommendation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recommendationColumns+` FROM recommendations
		WHERE measurement_id = ? AND (? = '' OR priority = ?)
		ORDER BY id`, measurementID, string(priority), string(priority))
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	out := []*domain.Recommendation{}
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateRecommendation sets the non-nil back-fillable fields
func (r *SQLRepository) UpdateRecommendation(ctx context.Context, id int64, update domain.RecommendationUpdate) (*domain.Recommendation, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recommendations SET
			estimated_cost = COALESCE(?, estimated_cost),
			implementation_timeframe = COALESCE(?, implementation_timeframe)
		WHERE id = ?`,
		update.EstimatedCost, update.ImplementationTimeframe, id)
	if err != nil {
		return nil, fmt.Errorf("updating recommendation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating recommendation: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("recommendation %d not found: %w", id, domain.ErrNotFound)
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+recommendationColumns+` FROM recommendations WHERE id = ?`, id)
	rec, err := scanRecommendation(row)
	if err != nil {
		return nil, fmt.Errorf("reading updated recommendation: %w", err)
	}
	return rec, nil
}

// DeleteMeasurement removes a measurement; predictions and recommendations
// cascade
func (r *SQLRepository) DeleteMeasurement(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM water_quality_measurements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting measurement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting measurement: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("measurement %d not found: %w", id, domain.ErrNotFound)
	}
	return nil
}

// History returns a location's measurements since a time with their first
// prediction, oldest first
func (r *SQLRepository) History(ctx context.Context, location string, since time.Time) ([]domain.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(historyQueryTemplate, "?", "?"), location, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			m          domain.Measurement
			ts         string
			predID     sql.NullInt64
			potable    sql.NullBool
			confidence sql.NullFloat64
			version    sql.NullString
			createdAt  sql.NullString
		)
		dest := append(measurementDest(&m, &ts), &predID, &potable, &confidence, &version, &createdAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing measured_at: %w", err)
		}
		rec := domain.HistoryRecord{Measurement: &m}
		if predID.Valid {
			p := &domain.Prediction{
				ID:            predID.Int64,
				MeasurementID: m.ID,
				IsPotable:     potable.Bool,
				Confidence:    confidence.Float64,
				ModelVersion:  version.String,
			}
			if createdAt.Valid {
				if p.Timestamp, err = parseTime(createdAt.String); err != nil {
					return nil, fmt.Errorf("parsing prediction created_at: %w", err)
				}
			}
			rec.Prediction = p
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Health checks the database connection
func (r *SQLRepository) Health(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
