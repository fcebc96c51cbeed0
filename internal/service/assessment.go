package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

// Stage names the pipeline step an AssessmentError came from.
type Stage string

const (
	StagePredict Stage = "predict"
	StagePersist Stage = "persist"
)

// AssessmentError wraps a pipeline failure. When the predictor succeeded but
// persistence failed, Verdict holds the prediction so the caller can retry
// Persist without predicting again.
type AssessmentError struct {
	Stage   Stage
	Err     error
	Verdict *domain.Verdict
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("assessment failed at %s stage: %v", e.Stage, e.Err)
}

func (e *AssessmentError) Unwrap() error {
	return e.Err
}

// Recorder receives pipeline measurements. The metrics package provides the
// prometheus implementation.
type Recorder interface {
	ObserveAssessment(potable bool, recommendations int, elapsed time.Duration)
	ObserveFailure(stage string)
	ObserveSkipped(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAssessment(bool, int, time.Duration) {}
func (nopRecorder) ObserveFailure(string)                      {}
func (nopRecorder) ObserveSkipped(string)                      {}

// AssessmentOptions tunes the pipeline.
type AssessmentOptions struct {
	PredictTimeout time.Duration
	PersistTimeout time.Duration
	Publisher      domain.Publisher
	Recorder       Recorder
}

// AnalysisResult is a prediction plus plan that is never persisted.
type AnalysisResult struct {
	Potable         bool               `json:"potable"`
	Confidence      float64            `json:"confidence"`
	Recommendations *domain.Plan       `json:"recommendations"`
	Outcomes        []ParameterOutcome `json:"-"`
}

// AssessmentService runs the validate, predict, persist pipeline and serves
// stored assessments
type AssessmentService struct {
	logger    *logrus.Logger
	predictor domain.Predictor
	repo      domain.Repository
	assembler *RecommendationAssembler
	opts      AssessmentOptions
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(
	logger *logrus.Logger,
	predictor domain.Predictor,
	repo domain.Repository,
	assembler *RecommendationAssembler,
	opts AssessmentOptions,
) *AssessmentService {
	if opts.PredictTimeout <= 0 {
		opts.PredictTimeout = 10 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &AssessmentService{
		logger:    logger,
		predictor: predictor,
		repo:      repo,
		assembler: assembler,
		opts:      opts,
	}
}

// Assess validates a sample, predicts potability and persists the
// measurement, its prediction and, when not potable, its remediation items in
// one transaction. Every call creates new records.
func (s *AssessmentService) Assess(ctx context.Context, sample *domain.Sample) (*domain.AssessmentReport, error) {
	start := time.Now()

	if err := sample.Validate(); err != nil {
		return nil, err
	}

	verdict, err := s.predict(ctx, sample.Measurement().Features())
	if err != nil {
		s.opts.Recorder.ObserveFailure(string(StagePredict))
		return nil, &AssessmentError{Stage: StagePredict, Err: err}
	}

	report, err := s.Persist(ctx, sample, verdict)
	if err != nil {
		return nil, err
	}

	s.opts.Recorder.ObserveAssessment(verdict.IsPotable, len(report.Recommendations), time.Since(start))

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.Publish(ctx, report); err != nil {
			s.logger.WithError(err).WithField("measurement_id", report.Measurement.ID).Warn("Failed to publish assessment")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"measurement_id":  report.Measurement.ID,
		"location":        report.Measurement.Location,
		"is_potable":      verdict.IsPotable,
		"confidence":      verdict.Confidence,
		"recommendations": len(report.Recommendations),
		"processing_time": time.Since(start),
	}).Info("Assessment completed")

	return report, nil
}

// Persist stores a sample with an already computed verdict. It is the retry
// path after a persist-stage failure and never calls the predictor.
func (s *AssessmentService) Persist(ctx context.Context, sample *domain.Sample, verdict domain.Verdict) (*domain.AssessmentReport, error) {
	if err := sample.Validate(); err != nil {
		return nil, err
	}

	measurement := sample.Measurement()
	plan := domain.NewPlan()
	var actions []Action
	if !verdict.IsPotable {
		assembly := s.assembler.AssembleMeasurement(measurement)
		plan = assembly.Plan
		actions = assembly.Actions
		s.recordSkipped(assembly)
	}

	report := &domain.AssessmentReport{Plan: plan, Recommendations: []*domain.Recommendation{}}

	persistCtx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	defer cancel()

	err := s.repo.WithinTx(persistCtx, func(ctx context.Context, w domain.AssessmentWriter) error {
		m := *measurement
		if err := w.CreateMeasurement(ctx, &m); err != nil {
			return fmt.Errorf("failed to store measurement: %w", err)
		}

		p := &domain.Prediction{
			MeasurementID: m.ID,
			IsPotable:     verdict.IsPotable,
			Confidence:    verdict.Confidence,
			ModelVersion:  s.predictor.ModelVersion(),
		}
		if err := w.CreatePrediction(ctx, p); err != nil {
			return fmt.Errorf("failed to store prediction: %w", err)
		}

		recs := make([]*domain.Recommendation, 0, len(actions))
		for _, a := range actions {
			r := recommendationFromAction(m.ID, a)
			if err := w.CreateRecommendation(ctx, r); err != nil {
				return fmt.Errorf("failed to store recommendation: %w", err)
			}
			recs = append(recs, r)
		}

		report.Measurement = &m
		report.Prediction = p
		report.Recommendations = recs
		return nil
	})
	if err != nil {
		s.opts.Recorder.ObserveFailure(string(StagePersist))
		s.logger.WithError(err).WithField("location", measurement.Location).Error("Failed to persist assessment")
		return nil, &AssessmentError{Stage: StagePersist, Err: err, Verdict: &verdict}
	}

	return report, nil
}

// Analyze predicts and plans without persisting anything.
func (s *AssessmentService) Analyze(ctx context.Context, sample *domain.Sample) (*AnalysisResult, error) {
	if err := sample.Validate(); err != nil {
		return nil, err
	}

	measurement := sample.Measurement()
	verdict, err := s.predict(ctx, measurement.Features())
	if err != nil {
		s.opts.Recorder.ObserveFailure(string(StagePredict))
		return nil, &AssessmentError{Stage: StagePredict, Err: err}
	}

	result := &AnalysisResult{Potable: verdict.IsPotable, Confidence: verdict.Confidence}
	if !verdict.IsPotable {
		assembly := s.assembler.AssembleMeasurement(measurement)
		result.Recommendations = assembly.Plan
		result.Outcomes = assembly.Outcomes
		s.recordSkipped(assembly)
	}
	return result, nil
}

// Recommend assembles a plan for arbitrary readings regardless of potability.
func (s *AssessmentService) Recommend(readings []domain.Reading) *Assembly {
	assembly := s.assembler.Assemble(readings)
	s.recordSkipped(assembly)
	return assembly
}

// GetAssessment rebuilds the composite report for a stored measurement.
func (s *AssessmentService) GetAssessment(ctx context.Context, id int64) (*domain.AssessmentReport, error) {
	m, err := s.repo.GetMeasurement(ctx, id)
	if err != nil {
		return nil, err
	}

	predictions, err := s.repo.PredictionsByMeasurement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions: %w", err)
	}
	var prediction *domain.Prediction
	if len(predictions) > 0 {
		prediction = predictions[0]
		if len(predictions) > 1 {
			s.logger.WithFields(logrus.Fields{
				"measurement_id": id,
				"predictions":    len(predictions),
			}).Warn("Measurement has more than one prediction, using the earliest")
		}
	}

	recs, err := s.repo.RecommendationsByMeasurement(ctx, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}

	return &domain.AssessmentReport{
		Measurement:     m,
		Prediction:      prediction,
		Recommendations: recs,
		Plan:            PlanFromRecommendations(recs),
	}, nil
}

// ListMeasurements returns stored measurements matching the filter.
func (s *AssessmentService) ListMeasurements(ctx context.Context, filter domain.MeasurementFilter) ([]*domain.Measurement, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, domain.NewValidationError("end_date", "must not be before start_date", filter.EndDate)
	}
	return s.repo.ListMeasurements(ctx, filter)
}

// RecentMeasurements returns measurements taken in the last hours, newest
// first, optionally for one location.
func (s *AssessmentService) RecentMeasurements(ctx context.Context, hours int, location string) ([]*domain.Measurement, error) {
	if hours <= 0 {
		return nil, domain.NewValidationError("hours", "must be positive", hours)
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return s.repo.RecentMeasurements(ctx, since, location)
}

// RecommendationsFor lists the stored items for a measurement, optionally
// filtered to one priority.
func (s *AssessmentService) RecommendationsFor(ctx context.Context, measurementID int64, priority string) ([]*domain.Recommendation, error) {
	var p domain.Priority
	if priority != "" {
		parsed, err := domain.ParsePriority(priority)
		if err != nil {
			return nil, domain.NewValidationError("priority", err.Error(), priority)
		}
		p = parsed
	}
	if _, err := s.repo.GetMeasurement(ctx, measurementID); err != nil {
		return nil, err
	}
	return s.repo.RecommendationsByMeasurement(ctx, measurementID, p)
}

// UpdateRecommendation back-fills the cost and timeframe of a stored item.
func (s *AssessmentService) UpdateRecommendation(ctx context.Context, id int64, update domain.RecommendationUpdate) (*domain.Recommendation, error) {
	if update.IsEmpty() {
		return nil, domain.NewValidationError("body", "estimated_cost or implementation_timeframe is required", nil)
	}
	if update.EstimatedCost != nil && *update.EstimatedCost < 0 {
		return nil, domain.NewValidationError("estimated_cost", "must not be negative", *update.EstimatedCost)
	}
	rec, err := s.repo.UpdateRecommendation(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("recommendation_id", id).Info("Recommendation updated")
	return rec, nil
}

// DeleteMeasurement removes a measurement together with its prediction and
// recommendations.
func (s *AssessmentService) DeleteMeasurement(ctx context.Context, id int64) error {
	if err := s.repo.DeleteMeasurement(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("measurement_id", id).Info("Measurement deleted")
	return nil
}

// Health reports storage availability.
func (s *AssessmentService) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}

// ModelVersion returns the active predictor version.
func (s *AssessmentService) ModelVersion() string {
	return s.predictor.ModelVersion()
}

func (s *AssessmentService) predict(ctx context.Context, features domain.Features) (domain.Verdict, error) {
	predictCtx, cancel := context.WithTimeout(ctx, s.opts.PredictTimeout)
	defer cancel()

	verdict, err := s.predictor.Predict(predictCtx, features)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Verdict{}, fmt.Errorf("prediction timed out after %s: %w", s.opts.PredictTimeout, err)
		}
		return domain.Verdict{}, fmt.Errorf("prediction failed: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return domain.Verdict{}, fmt.Errorf("prediction confidence %v outside [0, 1]", verdict.Confidence)
	}
	return verdict, nil
}

func (s *AssessmentService) recordSkipped(a *Assembly) {
	for _, o := range a.Outcomes {
		if o.Status == OutcomeNoGuideline || o.Status == OutcomeInvalid {
			s.opts.Recorder.ObserveSkipped(string(o.Status))
		}
	}
}

func recommendationFromAction(measurementID int64, a Action) *domain.Recommendation {
	r := &domain.Recommendation{
		MeasurementID:  measurementID,
		Parameter:      a.Parameter,
		Severity:       a.Severity,
		Priority:       a.Priority,
		Recommendation: a.Text,
	}
	if a.Estimate != nil {
		cost := a.Estimate.Cost
		r.EstimatedCost = &cost
		if a.Estimate.Timeframe != "" {
			tf := a.Estimate.Timeframe
			r.ImplementationTimeframe = &tf
		}
	}
	return r
}

// PlanFromRecommendations rebuilds the tagged plan from stored items, keeping
// their stored order within each tier.
func PlanFromRecommendations(recs []*domain.Recommendation) *domain.Plan {
	plan := domain.NewPlan()
	for _, r := range recs {
		tier := plan.Tier(r.Priority)
		if tier == nil {
			continue
		}
		*tier = append(*tier, fmt.Sprintf("[%s] [%s] %s",
			strings.ToUpper(r.Parameter), strings.ToUpper(string(r.Severity)), r.Recommendation))
	}
	return plan
}
