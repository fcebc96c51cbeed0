package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
)

// MockPredictor is a mock implementation of domain.Predictor
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, features domain.Features) (domain.Verdict, error) {
	args := m.Called(ctx, features)
	return args.Get(0).(domain.Verdict), args.Error(1)
}

func (m *MockPredictor) ModelVersion() string {
	return "test-model-1"
}

// memoryRepo is an in-memory domain.Repository. A transaction writes to a
// staging copy that is only merged when fn succeeds.
type memoryRepo struct {
	mu              sync.Mutex
	nextID          int64
	measurements    map[int64]*domain.Measurement
	predictions     []*domain.Prediction
	recommendations []*domain.Recommendation
	failOn          string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{measurements: make(map[int64]*domain.Measurement)}
}

type memoryTx struct {
	repo            *memoryRepo
	measurements    []*domain.Measurement
	predictions     []*domain.Prediction
	recommendations []*domain.Recommendation
}

func (tx *memoryTx) CreateMeasurement(_ context.Context, m *domain.Measurement) error {
	if tx.repo.failOn == "measurement" {
		return errors.New("disk full")
	}
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	tx.measurements = append(tx.measurements, m)
	return nil
}

func (tx *memoryTx) CreatePrediction(_ context.Context, p *domain.Prediction) error {
	if tx.repo.failOn == "prediction" {
		return errors.New("disk full")
	}
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	p.Timestamp = time.Now().UTC()
	tx.predictions = append(tx.predictions, p)
	return nil
}

func (tx *memoryTx) CreateRecommendation(_ context.Context, r *domain.Recommendation) error {
	if tx.repo.failOn == "recommendation" {
		return errors.New("disk full")
	}
	tx.repo.nextID++
	r.ID = tx.repo.nextID
	r.Timestamp = time.Now().UTC()
	tx.recommendations = append(tx.recommendations, r)
	return nil
}

func (r *memoryRepo) WithinTx(ctx context.Context, fn func(context.Context, domain.AssessmentWriter) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, m := range tx.measurements {
		r.measurements[m.ID] = m
	}
	r.predictions = append(r.predictions, tx.predictions...)
	r.recommendations = append(r.recommendations, tx.recommendations...)
	return nil
}

func (r *memoryRepo) GetMeasurement(_ context.Context, id int64) (*domain.Measurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.measurements[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (r *memoryRepo) ListMeasurements(_ context.Context, filter domain.MeasurementFilter) ([]*domain.Measurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Measurement
	for _, m := range r.measurements {
		if filter.Location == "" || m.Location == filter.Location {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) RecentMeasurements(_ context.Context, since time.Time, location string) ([]*domain.Measurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Measurement
	for _, m := range r.measurements {
		if m.Timestamp.After(since) && (location == "" || m.Location == location) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) PredictionsByMeasurement(_ context.Context, id int64) ([]*domain.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Prediction
	for _, p := range r.predictions {
		if p.MeasurementID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) RecommendationsByMeasurement(_ context.Context, id int64, priority domain.Priority) ([]*domain.Recommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Recommendation{}
	for _, rec := range r.recommendations {
		if rec.MeasurementID == id && (priority == "" || rec.Priority == priority) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateRecommendation(_ context.Context, id int64, update domain.RecommendationUpdate) (*domain.Recommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recommendations {
		if rec.ID == id {
			if update.EstimatedCost != nil {
				rec.EstimatedCost = update.EstimatedCost
			}
			if update.ImplementationTimeframe != nil {
				rec.ImplementationTimeframe = update.ImplementationTimeframe
			}
			return rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRepo) DeleteMeasurement(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.measurements[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.measurements, id)
	return nil
}

func (r *memoryRepo) History(context.Context, string, time.Time) ([]domain.HistoryRecord, error) {
	return nil, nil
}

func (r *memoryRepo) Health(context.Context) error { return nil }
func (r *memoryRepo) Close() error                 { return nil }

func (r *memoryRepo) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.measurements), len(r.predictions), len(r.recommendations)
}

type recordingPublisher struct {
	reports []*domain.AssessmentReport
}

func (p *recordingPublisher) Publish(_ context.Context, report *domain.AssessmentReport) error {
	p.reports = append(p.reports, report)
	return nil
}

func validSample(t *testing.T, overrides map[string]float64) *domain.Sample {
	t.Helper()
	values := map[string]float64{
		"Lat": 12.97, "Lon": 77.59,
		"Temperature": 20, "D.O": 7, "pH": 7.2, "Conductivity": 400,
		"B.O.D": 1, "Nitrate": 5, "Fecalcaliform": 0, "Totalcaliform": 10,
	}
	for k, v := range overrides {
		values[k] = v
	}
	s, err := domain.NewSample("River Site A", values)
	require.NoError(t, err)
	return s
}

func newTestService(predictor domain.Predictor, repo domain.Repository, publisher domain.Publisher) *AssessmentService {
	logger := quietLogger()
	return NewAssessmentService(logger, predictor, repo, NewRecommendationAssembler(logger, guideline.Default()), AssessmentOptions{
		PredictTimeout: time.Second,
		PersistTimeout: time.Second,
		Publisher:      publisher,
	})
}

func TestAssess_PotableStoresNoRecommendations(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: true, Confidence: 0.93}, nil)
	repo := newMemoryRepo()
	pub := &recordingPublisher{}
	svc := newTestService(predictor, repo, pub)

	report, err := svc.Assess(context.Background(), validSample(t, nil))
	require.NoError(t, err)

	assert.NotZero(t, report.Measurement.ID)
	assert.Equal(t, report.Measurement.ID, report.Prediction.MeasurementID)
	assert.True(t, report.Prediction.IsPotable)
	assert.Equal(t, "test-model-1", report.Prediction.ModelVersion)
	assert.Empty(t, report.Recommendations)
	assert.NotNil(t, report.Recommendations)
	assert.Equal(t, 0, report.Plan.Len())
	assert.Len(t, pub.reports, 1)

	m, p, r := repo.counts()
	assert.Equal(t, []int{1, 1, 0}, []int{m, p, r})
}

func TestAssess_NonPotablePersistsPlan(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: false, Confidence: 0.81}, nil)
	repo := newMemoryRepo()
	svc := newTestService(predictor, repo, nil)

	report, err := svc.Assess(context.Background(), validSample(t, map[string]float64{"pH": 9.2}))
	require.NoError(t, err)

	require.NotEmpty(t, report.Recommendations)
	for _, rec := range report.Recommendations {
		assert.Equal(t, domain.ParamPH, rec.Parameter)
		assert.Equal(t, domain.SeveritySevere, rec.Severity)
		assert.Equal(t, report.Measurement.ID, rec.MeasurementID)
	}
	assert.Equal(t, []string{"[PH] [SEVERE] Dose carbon dioxide or acid to bring pH below 8.5"}, report.Plan.Immediate)

	immediate := report.Recommendations[0]
	require.NotNil(t, immediate.EstimatedCost)
	assert.Equal(t, 900.0, *immediate.EstimatedCost)

	_, _, r := repo.counts()
	assert.Equal(t, len(report.Recommendations), r)
}

func TestAssess_ValidationFailurePersistsNothing(t *testing.T) {
	predictor := new(MockPredictor)
	repo := newMemoryRepo()
	svc := newTestService(predictor, repo, nil)

	_, err := svc.Assess(context.Background(), validSample(t, map[string]float64{"Fecalcaliform": -3}))

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.ParamFecalColiform, ve.Field)
	predictor.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)

	m, _, _ := repo.counts()
	assert.Zero(t, m)
}

func TestAssess_PredictorFailurePersistsNothing(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{}, errors.New("model unavailable"))
	repo := newMemoryRepo()
	svc := newTestService(predictor, repo, nil)

	_, err := svc.Assess(context.Background(), validSample(t, nil))

	var ae *AssessmentError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, StagePredict, ae.Stage)
	assert.Nil(t, ae.Verdict)

	m, p, r := repo.counts()
	assert.Equal(t, []int{0, 0, 0}, []int{m, p, r})
}

func TestAssess_RejectsOutOfRangeConfidence(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: true, Confidence: 1.7}, nil)
	svc := newTestService(predictor, newMemoryRepo(), nil)

	_, err := svc.Assess(context.Background(), validSample(t, nil))

	var ae *AssessmentError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, StagePredict, ae.Stage)
}

func TestAssess_PersistFailureKeepsVerdictForRetry(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: false, Confidence: 0.7}, nil).Once()
	repo := newMemoryRepo()
	repo.failOn = "recommendation"
	svc := newTestService(predictor, repo, nil)
	sample := validSample(t, map[string]float64{"Nitrate": 80})

	_, err := svc.Assess(context.Background(), sample)

	var ae *AssessmentError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, StagePersist, ae.Stage)
	require.NotNil(t, ae.Verdict)
	assert.False(t, ae.Verdict.IsPotable)

	m, p, r := repo.counts()
	assert.Equal(t, []int{0, 0, 0}, []int{m, p, r}, "failed transaction must leave nothing behind")

	repo.failOn = ""
	report, err := svc.Persist(context.Background(), sample, *ae.Verdict)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Recommendations)
	assert.Equal(t, 0.7, report.Prediction.Confidence)

	predictor.AssertNumberOfCalls(t, "Predict", 1)
}

func TestAssess_IdenticalSamplesCreateDistinctRecords(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: true, Confidence: 0.9}, nil)
	repo := newMemoryRepo()
	svc := newTestService(predictor, repo, nil)

	first, err := svc.Assess(context.Background(), validSample(t, nil))
	require.NoError(t, err)
	second, err := svc.Assess(context.Background(), validSample(t, nil))
	require.NoError(t, err)

	assert.NotEqual(t, first.Measurement.ID, second.Measurement.ID)
	assert.NotEqual(t, first.Prediction.ID, second.Prediction.ID)
}

func TestAnalyze_DoesNotPersist(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: false, Confidence: 0.66}, nil)
	repo := newMemoryRepo()
	svc := newTestService(predictor, repo, nil)

	result, err := svc.Analyze(context.Background(), validSample(t, map[string]float64{"D.O": 4.2}))
	require.NoError(t, err)

	assert.False(t, result.Potable)
	require.NotNil(t, result.Recommendations)
	assert.Contains(t, result.Recommendations.Immediate, "[DISSOLVED_OXYGEN] [NORMAL] Install temporary aeration at the intake")

	m, _, _ := repo.counts()
	assert.Zero(t, m)
}

func TestAnalyze_PotableHasNoPlan(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: true, Confidence: 0.9}, nil)
	svc := newTestService(predictor, newMemoryRepo(), nil)

	result, err := svc.Analyze(context.Background(), validSample(t, nil))
	require.NoError(t, err)
	assert.Nil(t, result.Recommendations)
}

func TestGetAssessment(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: false, Confidence: 0.8}, nil)
	repo := newMemoryRepo()
	svc := newTestService(predictor, repo, nil)

	stored, err := svc.Assess(context.Background(), validSample(t, map[string]float64{"pH": 9.2}))
	require.NoError(t, err)

	// A second prediction for the same measurement is tolerated.
	require.NoError(t, repo.WithinTx(context.Background(), func(ctx context.Context, w domain.AssessmentWriter) error {
		return w.CreatePrediction(ctx, &domain.Prediction{MeasurementID: stored.Measurement.ID, IsPotable: true, Confidence: 0.5})
	}))

	report, err := svc.GetAssessment(context.Background(), stored.Measurement.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Prediction.ID, report.Prediction.ID)
	assert.Equal(t, stored.Plan, report.Plan)

	_, err = svc.GetAssessment(context.Background(), 9999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRecommendationsFor(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: false, Confidence: 0.8}, nil)
	svc := newTestService(predictor, newMemoryRepo(), nil)

	stored, err := svc.Assess(context.Background(), validSample(t, map[string]float64{"pH": 9.2}))
	require.NoError(t, err)

	recs, err := svc.RecommendationsFor(context.Background(), stored.Measurement.ID, "immediate")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.PriorityImmediate, recs[0].Priority)

	_, err = svc.RecommendationsFor(context.Background(), stored.Measurement.ID, "someday")
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = svc.RecommendationsFor(context.Background(), 9999, "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateRecommendation(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(domain.Verdict{IsPotable: false, Confidence: 0.8}, nil)
	svc := newTestService(predictor, newMemoryRepo(), nil)

	stored, err := svc.Assess(context.Background(), validSample(t, map[string]float64{"pH": 9.2}))
	require.NoError(t, err)
	target := stored.Recommendations[0]
	text := target.Recommendation

	cost := 1250.0
	updated, err := svc.UpdateRecommendation(context.Background(), target.ID, domain.RecommendationUpdate{EstimatedCost: &cost})
	require.NoError(t, err)
	assert.Equal(t, 1250.0, *updated.EstimatedCost)
	assert.Equal(t, text, updated.Recommendation)
	assert.Equal(t, domain.SeveritySevere, updated.Severity)

	_, err = svc.UpdateRecommendation(context.Background(), target.ID, domain.RecommendationUpdate{})
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))

	negative := -1.0
	_, err = svc.UpdateRecommendation(context.Background(), target.ID, domain.RecommendationUpdate{EstimatedCost: &negative})
	assert.True(t, errors.As(err, &ve))
}

func TestRecentMeasurementsValidatesHours(t *testing.T) {
	svc := newTestService(new(MockPredictor), newMemoryRepo(), nil)

	_, err := svc.RecentMeasurements(context.Background(), 0, "")
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestListMeasurementsRejectsInvertedDates(t *testing.T) {
	svc := newTestService(new(MockPredictor), newMemoryRepo(), nil)
	start := time.Now()
	end := start.Add(-time.Hour)

	_, err := svc.ListMeasurements(context.Background(), domain.MeasurementFilter{StartDate: &start, EndDate: &end})
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}
