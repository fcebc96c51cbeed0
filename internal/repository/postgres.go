package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

// PostgresRepository implements domain.Repository on a pgx pool
type PostgresRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		log: logger,
	}
}

// pgWriter creates records on an open transaction
type pgWriter struct {
	tx pgx.Tx
}

func (w *pgWriter) CreateMeasurement(ctx context.Context, m *domain.Measurement) error {
	query := `
		INSERT INTO water_quality_measurements (
			location, latitude, longitude, temperature, dissolved_oxygen, ph,
			conductivity, bod, nitrate, fecal_coliform, total_coliform, measured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))
		RETURNING id, measured_at`

	var ts *time.Time
	if !m.Timestamp.IsZero() {
		t := m.Timestamp.UTC()
		ts = &t
	}
	if err := w.tx.QueryRow(ctx, query, measurementArgs(m, ts)...).Scan(&m.ID, &m.Timestamp); err != nil {
		return fmt.Errorf("creating measurement: %w", err)
	}
	m.Timestamp = m.Timestamp.UTC()
	return nil
}

func (w *pgWriter) CreatePrediction(ctx context.Context, p *domain.Prediction) error {
	query := `
		INSERT INTO water_quality_predictions (measurement_id, is_potable, confidence, model_version)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	if err := w.tx.QueryRow(ctx, query, p.MeasurementID, p.IsPotable, p.Confidence, p.ModelVersion).
		Scan(&p.ID, &p.Timestamp); err != nil {
		return fmt.Errorf("creating prediction: %w", err)
	}
	p.Timestamp = p.Timestamp.UTC()
	return nil
}

func (w *pgWriter) CreateRecommendation(ctx context.Context, r *domain.Recommendation) error {
	query := `
		INSERT INTO recommendations (
			measurement_id, parameter, severity, priority, recommendation,
			estimated_cost, implementation_timeframe
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	if err := w.tx.QueryRow(ctx, query,
		r.MeasurementID, r.Parameter, string(r.Severity), string(r.Priority), r.Recommendation,
		r.EstimatedCost, r.ImplementationTimeframe,
	).Scan(&r.ID, &r.Timestamp); err != nil {
		return fmt.Errorf("creating recommendation: %w", err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return nil
}

// WithinTx runs fn in a read-committed transaction
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(context.Context, domain.AssessmentWriter) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.log.WithError(err).Warn("Failed to roll back transaction")
		}
	}()

	if err := fn(ctx, &pgWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetMeasurement retrieves a measurement by its ID
func (r *PostgresRepository) GetMeasurement(ctx context.Context, id int64) (*domain.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM water_quality_measurements WHERE id = $1`

	var m domain.Measurement
	err := r.db.QueryRow(ctx, query, id).Scan(measurementDest(&m, &m.Timestamp)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("measurement %d not found: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"measurement_id": id,
			"error":          err,
		}).Error("Failed to get measurement")
		return nil, fmt.Errorf("getting measurement: %w", err)
	}
	m.Timestamp = m.Timestamp.UTC()
	return &m, nil
}

// ListMeasurements lists measurements matching the filter in id order
func (r *PostgresRepository) ListMeasurements(ctx context.Context, filter domain.MeasurementFilter) ([]*domain.Measurement, error) {
	query, args := filterQuery(filter, dollar, func(t any) any { return t })
	return r.queryMeasurements(ctx, query, args...)
}

// RecentMeasurements lists measurements taken at or after since, newest first
func (r *PostgresRepository) RecentMeasurements(ctx context.Context, since time.Time, location string) ([]*domain.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM water_quality_measurements
		WHERE measured_at >= $1 AND ($2 = '' OR location = $2)
		ORDER BY measured_at DESC, id DESC`
	return r.queryMeasurements(ctx, query, since.UTC(), location)
}

func (r *PostgresRepository) queryMeasurements(ctx context.Context, query string, args ...any) ([]*domain.Measurement, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	out := []*domain.Measurement{}
	for rows.Next() {
		var m domain.Measurement
		if err := rows.Scan(measurementDest(&m, &m.Timestamp)...); err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

// PredictionsByMeasurement lists predictions for a measurement in id order
func (r *PostgresRepository) PredictionsByMeasurement(ctx context.Context, measurementID int64) ([]*domain.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM water_quality_predictions
		WHERE measurement_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, measurementID)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	out := []*domain.Prediction{}
	for rows.Next() {
		var p domain.Prediction
		if err := rows.Scan(predictionDest(&p, &p.Timestamp)...); err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		out = append(out, &p)
	}
	return out, rows.Err()
}

// RecommendationsByMeasurement lists recommendations for a measurement in id
// order. An empty priority matches all tiers.
func (r *PostgresRepository) RecommendationsByMeasurement(ctx context.Context, measurementID int64, priority domain.Priority) ([]*domain.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations
		WHERE measurement_id = $1 AND ($2 = '' OR priority = $2)
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, measurementID, string(priority))
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	out := []*domain.Recommendation{}
	for rows.Next() {
		var rec domain.Recommendation
		if err := rows.Scan(recommendationDest(&rec, &rec.Timestamp)...); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// UpdateRecommendation sets the non-nil back-fillable fields
func (r *PostgresRepository) UpdateRecommendation(ctx context.Context, id int64, update domain.RecommendationUpdate) (*domain.Recommendation, error) {
	query := `
		UPDATE recommendations SET
			estimated_cost = COALESCE($2, estimated_cost),
			implementation_timeframe = COALESCE($3, implementation_timeframe)
		WHERE id = $1
		RETURNING ` + recommendationColumns

	var rec domain.Recommendation
	err := r.db.QueryRow(ctx, query, id, update.EstimatedCost, update.ImplementationTimeframe).
		Scan(recommendationDest(&rec, &rec.Timestamp)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("recommendation %d not found: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("updating recommendation: %w", err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

// DeleteMeasurement removes a measurement; predictions and recommendations
// cascade
func (r *PostgresRepository) DeleteMeasurement(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM water_quality_measurements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting measurement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("measurement %d not found: %w", id, domain.ErrNotFound)
	}
	return nil
}

// History returns a location's measurements since a time with their first
// prediction, oldest first
func (r *PostgresRepository) History(ctx context.Context, location string, since time.Time) ([]domain.HistoryRecord, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(historyQueryTemplate, "$1", "$2"), location, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			m          domain.Measurement
			predID     *int64
			potable    *bool
			confidence *float64
			version    *string
			createdAt  *time.Time
		)
		dest := append(measurementDest(&m, &m.Timestamp), &predID, &potable, &confidence, &version, &createdAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		rec := domain.HistoryRecord{Measurement: &m}
		if predID != nil {
			rec.Prediction = &domain.Prediction{
				ID:            *predID,
				MeasurementID: m.ID,
				IsPotable:     *potable,
				Confidence:    *confidence,
				ModelVersion:  *version,
				Timestamp:     createdAt.UTC(),
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Health checks the database connection
func (r *PostgresRepository) Health(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close is a no-op; the pool is owned by database.DB
func (r *PostgresRepository) Close() error {
	return nil
}
