package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/water-quality-server/internal/database"
	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/feed"
	"github.com/water-quality-server/internal/guideline"
	"github.com/water-quality-server/internal/metrics"
	"github.com/water-quality-server/internal/predictor"
	"github.com/water-quality-server/internal/repository"
	"github.com/water-quality-server/internal/service"
	"github.com/water-quality-server/internal/trends"
)

type staticConfig struct {
	cfg *domain.Config
}

func (s staticConfig) GetConfig() *domain.Config { return s.cfg }
func (s staticConfig) GetDatabaseConfig() *domain.DatabaseConfig { return &s.cfg.Database }
func (s staticConfig) GetServerConfig() *domain.ServerConfig { return &s.cfg.Server }
func (s staticConfig) GetPredictorConfig() *domain.PredictorConfig { return &s.cfg.Predictor }
func (s staticConfig) Reload() error { return nil }
func (s staticConfig) Validate() error { return nil }
func (s staticConfig) GetDatabaseConnectionString() string { return "" }
func (s staticConfig) GetDatabaseURL() string { return "" }
func (s staticConfig) GetRedisConnectionString() string { return "" }
func (s staticConfig) IsProduction() bool { return false }
func (s staticConfig) IsDevelopment() bool { return true }

type testEnv struct {
	server *Server
	hub    *feed.Hub
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	repo := repository.NewSQLRepository(db, logger)
	t.Cleanup(func() { repo.Close() })

	table := guideline.Default()
	hub := feed.NewHub(feed.DefaultBuffer, logger)
	m := metrics.New()

	svc := service.NewAssessmentService(logger, predictor.DefaultModel(), repo,
		service.NewRecommendationAssembler(logger, table),
		service.AssessmentOptions{Publisher: hub, Recorder: m})

	cfg := &domain.Config{
		Server: domain.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MetricsEnabled: true,
		},
		CORS:    domain.CORSConfig{AllowedOrigins: "*"},
		Logging: domain.LoggingConfig{Level: "error"},
	}

	srv := NewServer(staticConfig{cfg: cfg}, Dependencies{
		Assessor: svc,
		Trends:   trends.NewAnalyzer(repo, table, logger),
		Table:    table,
		Feed:     hub,
		Metrics:  m,
		Logger:   logger,
	})
	return &testEnv{server: srv, hub: hub}
}

func samplePayload(location string, ph float64) map[string]any {
	return map[string]any{
		"location":      location,
		"Lat":           12.97,
		"Lon":           77.59,
		"Temperature":   21.0,
		"D.O":           7.0,
		"PH":            ph,
		"Conductivity":  400.0,
		"B.O.D":         1.0,
		"Nitrate":       5.0,
		"Fecalcaliform": 0.0,
		"Totalcaliform": 10.0,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealth(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "band-excess-v1", body["model_version"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestPredictLifecycle(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodPost, "/predict", samplePayload("Intake-1", 9.2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var report domain.AssessmentReport
	decode(t, w, &report)
	require.NotNil(t, report.Prediction)
	assert.False(t, report.Prediction.IsPotable)
	require.NotNil(t, report.Plan)
	assert.Equal(t, []string{"[PH] [SEVERE] Dose carbon dioxide or acid to bring pH below 8.5"}, report.Plan.Immediate)
	id := report.Measurement.ID

	w = env.do(t, http.MethodGet, "/measurements/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched domain.AssessmentReport
	decode(t, w, &fetched)
	assert.Equal(t, report.Plan, fetched.Plan)

	w = env.do(t, http.MethodGet, "/measurements/"+itoa(id)+"/recommendations?priority=immediate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []domain.Recommendation
	decode(t, w, &recs)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ParamPH, recs[0].Parameter)

	w = env.do(t, http.MethodGet, "/measurements/"+itoa(id)+"/recommendations?priority=someday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/recommendations/"+itoa(recs[0].ID), map[string]any{
		"estimated_cost":           1250.0,
		"implementation_timeframe": "2 days",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated domain.Recommendation
	decode(t, w, &updated)
	require.NotNil(t, updated.EstimatedCost)
	assert.Equal(t, 1250.0, *updated.EstimatedCost)

	w = env.do(t, http.MethodPatch, "/recommendations/"+itoa(recs[0].ID), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/measurements/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/measurements/"+itoa(id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var apiErr domain.APIError
	decode(t, w, &apiErr)
	assert.Equal(t, domain.ErrCodeNotFound, apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestPredictRejectsInvalidSample(t *testing.T) {
	env := setupServer(t)

	payload := samplePayload("Intake-1", 7.2)
	delete(payload, "Nitrate")

	w := env.do(t, http.MethodPost, "/predict", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr domain.APIError
	decode(t, w, &apiErr)
	assert.Equal(t, domain.ErrCodeValidation, apiErr.Code)
	assert.Equal(t, domain.ParamNitrate, apiErr.Details)

	w = env.do(t, http.MethodPost, "/predict", map[string]any{"location": "x", "PH": "acidic"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/measurements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestAnalyzeDoesNotPersist(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodPost, "/analyze", samplePayload("Intake-1", 7.2))
	require.Equal(t, http.StatusOK, w.Code)
	var potable map[string]any
	decode(t, w, &potable)
	assert.Equal(t, true, potable["potable"])
	assert.Nil(t, potable["recommendations"])

	w = env.do(t, http.MethodPost, "/analyze", samplePayload("Intake-1", 9.2))
	require.Equal(t, http.StatusOK, w.Code)
	var result service.AnalysisResult
	decode(t, w, &result)
	assert.False(t, result.Potable)
	require.NotNil(t, result.Recommendations)
	assert.Len(t, result.Recommendations.Immediate, 1)

	w = env.do(t, http.MethodGet, "/measurements/recent?hours=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestRecommend(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodPost, "/api/recommend", map[string]any{
		"location":  "Intake-1",
		"D.O":       4.2,
		"turbidity": 9.0,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Recommendations domain.Plan `json:"recommendations"`
		Skipped         []struct {
			Parameter string `json:"parameter"`
			Status    string `json:"status"`
		} `json:"skipped"`
	}
	decode(t, w, &body)
	assert.Equal(t, []string{"[DISSOLVED_OXYGEN] [NORMAL] Install temporary aeration at the intake"}, body.Recommendations.Immediate)
	require.Len(t, body.Skipped, 1)
	assert.Equal(t, "turbidity", body.Skipped[0].Parameter)

	w = env.do(t, http.MethodPost, "/api/recommend", map[string]any{"location": "Intake-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendReportsMalformedReadings(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodPost, "/api/recommend", map[string]any{
		"location": "Intake-1",
		"ph":       nil,
		"D.O":      7.0,
		"nitrate":  "abc",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Recommendations domain.Plan `json:"recommendations"`
		Skipped         []struct {
			Parameter string   `json:"parameter"`
			Value     *float64 `json:"value"`
			Status    string   `json:"status"`
		} `json:"skipped"`
	}
	decode(t, w, &body)
	assert.Empty(t, body.Recommendations.Immediate)
	assert.Empty(t, body.Recommendations.ShortTerm)
	assert.Empty(t, body.Recommendations.LongTerm)

	require.Len(t, body.Skipped, 2)
	got := map[string]string{}
	for _, sk := range body.Skipped {
		assert.Nil(t, sk.Value)
		got[sk.Parameter] = sk.Status
	}
	assert.Equal(t, map[string]string{
		domain.ParamPH:      "invalid",
		domain.ParamNitrate: "invalid",
	}, got)
}

func TestPredictRejectsNullReading(t *testing.T) {
	env := setupServer(t)

	payload := samplePayload("Intake-1", 7.2)
	payload["PH"] = nil
	w := env.do(t, http.MethodPost, "/predict", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/measurements/recent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.Measurement
	decode(t, w, &list)
	assert.Empty(t, list)
}

func TestMeasurementQueries(t *testing.T) {
	env := setupServer(t)

	for _, loc := range []string{"Intake-1", "Intake-2"} {
		w := env.do(t, http.MethodPost, "/predict", samplePayload(loc, 7.2))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, http.MethodGet, "/measurements?location=Intake-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.Measurement
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Intake-2", list[0].Location)

	w = env.do(t, http.MethodGet, "/measurements/recent?hours=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Len(t, list, 2)

	w = env.do(t, http.MethodGet, "/measurements?start_date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/measurements?start_date=2024-06-02&end_date=2024-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/measurements/recent?hours=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/measurements/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuidelines(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodGet, "/guidelines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []domain.ParameterGuideline
	decode(t, w, &all)
	assert.Len(t, all, len(domain.FeatureOrder))

	w = env.do(t, http.MethodGet, "/guidelines/D.O", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var g domain.ParameterGuideline
	decode(t, w, &g)
	assert.Equal(t, domain.ParamDissolvedOxygen, g.Parameter)
	assert.Equal(t, 5.0, g.Range.Min)

	w = env.do(t, http.MethodGet, "/guidelines/turbidity", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrendsDashboardsAndExport(t *testing.T) {
	env := setupServer(t)

	for _, ph := range []float64{7.0, 7.4, 9.2} {
		w := env.do(t, http.MethodPost, "/predict", samplePayload("Intake-1", ph))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, http.MethodGet, "/trends/Intake-1?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report domain.TrendReport
	decode(t, w, &report)
	assert.Equal(t, 3, report.SampleCount)
	assert.Equal(t, 7, report.Days)

	w = env.do(t, http.MethodGet, "/trends/Intake-1?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/dashboard/Intake-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var overview domain.Dashboard
	decode(t, w, &overview)
	assert.Equal(t, trends.KindOverview, overview.Kind)
	assert.Len(t, overview.Series, len(domain.FeatureOrder))

	w = env.do(t, http.MethodGet, "/dashboard/Intake-1/parameter/PH", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var param domain.Dashboard
	decode(t, w, &param)
	require.Len(t, param.Series, 1)

	w = env.do(t, http.MethodGet, "/dashboard/Intake-1/parameter/turbidity", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/dashboard/compare?locations=Intake-1,Intake-9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cmp domain.Dashboard
	decode(t, w, &cmp)
	assert.Equal(t, []string{"Intake-1", "Intake-9"}, cmp.Locations)
	require.Len(t, cmp.Reports, 2)
	assert.Equal(t, 0, cmp.Reports[1].SampleCount)

	w = env.do(t, http.MethodGet, "/dashboard/compare", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/export/Intake-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Intake-1_water_quality.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 4)

	w = env.do(t, http.MethodGet, "/export/Intake-1?format=excel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	w = env.do(t, http.MethodGet, "/export/Intake-1?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupServer(t)

	env.do(t, http.MethodPost, "/predict", samplePayload("Intake-1", 9.2))

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `water_quality_assessments_total{potable="false"} 1`)
	assert.Contains(t, w.Body.String(), "water_quality_http_requests_total")
}

func TestLiveFeed(t *testing.T) {
	env := setupServer(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/assessments"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.do(t, http.MethodPost, "/predict", samplePayload("Intake-1", 9.2))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event feed.Event
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, feed.EventAssessment, event.Type)
	require.NotNil(t, event.Report)
	assert.Equal(t, "Intake-1", event.Report.Measurement.Location)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
