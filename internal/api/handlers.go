package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/service"
)

const dateLayout = "2006-01-02"

// handleHealth reports liveness and storage health
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":        "healthy",
		"database":      "connected",
		"model_version": s.deps.Assessor.ModelVersion(),
		"timestamp":     time.Now().UTC(),
	}
	if err := s.deps.Assessor.Health(c.Request.Context()); err != nil {
		s.logger.WithError(err).Warn("Health check failed")
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "unavailable"
	}
	c.JSON(status, body)
}

func (s *Server) bindSample(c *gin.Context) (*domain.Sample, bool) {
	var sample domain.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			s.respondError(c, err)
		} else {
			badRequest(c, "Request body must be a JSON object")
		}
		return nil, false
	}
	return &sample, true
}

// handlePredict runs the full pipeline and returns the composite report
func (s *Server) handlePredict(c *gin.Context) {
	sample, ok := s.bindSample(c)
	if !ok {
		return
	}

	report, err := s.deps.Assessor.Assess(c.Request.Context(), sample)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"measurement_id": report.Measurement.ID,
		"location":       report.Measurement.Location,
	}).Debug("Sample assessed")
	c.JSON(http.StatusCreated, report)
}

// handleAnalyze predicts and plans without storing anything
func (s *Server) handleAnalyze(c *gin.Context) {
	sample, ok := s.bindSample(c)
	if !ok {
		return
	}

	result, err := s.deps.Assessor.Analyze(c.Request.Context(), sample)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRecommend builds a plan from any subset of readings. Non-parameter
// fields such as location are ignored. A known parameter whose value is null
// or not a number is passed on as NaN so the assembler reports it as invalid.
func (s *Server) handleRecommend(c *gin.Context) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Request body must be a JSON object")
		return
	}

	values := make(map[string]float64, len(body))
	for name, raw := range body {
		v, err := domain.DecodeNumber(raw)
		if err == nil {
			values[name] = v
			continue
		}
		if _, ok := domain.CanonicalParameter(name); ok {
			values[name] = math.NaN()
		}
	}
	if len(values) == 0 {
		badRequest(c, "At least one numeric reading is required")
		return
	}

	assembly := s.deps.Assessor.Recommend(domain.ReadingsFrom(values))
	c.JSON(http.StatusOK, gin.H{
		"recommendations": assembly.Plan,
		"skipped":         skipped(assembly),
	})
}

func skipped(a *service.Assembly) []gin.H {
	out := []gin.H{}
	for _, o := range a.Outcomes {
		if o.Status != service.OutcomeNoGuideline && o.Status != service.OutcomeInvalid {
			continue
		}
		var value any = o.Value
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			value = nil
		}
		out = append(out, gin.H{"parameter": o.Parameter, "value": value, "status": o.Status})
	}
	return out
}

func parseDate(c *gin.Context, field string) (*time.Time, bool) {
	raw := c.Query(field)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse(dateLayout, raw)
	}
	if err != nil {
		verr := domain.NewValidationError(field, "must be a date (YYYY-MM-DD) or RFC 3339 time", raw)
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeValidation, verr.Error(), field, requestID(c)))
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

func queryInt(c *gin.Context, field string, def int) (int, bool) {
	raw := c.Query(field)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, field+" must be an integer")
		return 0, false
	}
	return n, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// handleListMeasurements lists stored measurements with optional filters
func (s *Server) handleListMeasurements(c *gin.Context) {
	filter := domain.MeasurementFilter{Location: c.Query("location")}

	var ok bool
	if filter.StartDate, ok = parseDate(c, "start_date"); !ok {
		return
	}
	if filter.EndDate, ok = parseDate(c, "end_date"); !ok {
		return
	}
	if filter.Skip, ok = queryInt(c, "skip", 0); !ok {
		return
	}
	if filter.Limit, ok = queryInt(c, "limit", 100); !ok {
		return
	}

	measurements, err := s.deps.Assessor.ListMeasurements(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, measurements)
}

// handleRecentMeasurements lists measurements from the last hours
func (s *Server) handleRecentMeasurements(c *gin.Context) {
	hours, ok := queryInt(c, "hours", 24)
	if !ok {
		return
	}

	measurements, err := s.deps.Assessor.RecentMeasurements(c.Request.Context(), hours, c.Query("location"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, measurements)
}

// handleGetMeasurement returns the composite report for one measurement
func (s *Server) handleGetMeasurement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	report, err := s.deps.Assessor.GetAssessment(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleDeleteMeasurement removes a measurement and its dependents
func (s *Server) handleDeleteMeasurement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.deps.Assessor.DeleteMeasurement(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Measurement deleted", "id": id})
}

// handleMeasurementRecommendations lists stored items, optionally by priority
func (s *Server) handleMeasurementRecommendations(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	recs, err := s.deps.Assessor.RecommendationsFor(c.Request.Context(), id, c.Query("priority"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// handleUpdateRecommendation back-fills cost and timeframe
func (s *Server) handleUpdateRecommendation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var update domain.RecommendationUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Request body must be a JSON object")
		return
	}

	rec, err := s.deps.Assessor.UpdateRecommendation(c.Request.Context(), id, update)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleListGuidelines returns the whole catalog
func (s *Server) handleListGuidelines(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Table.All())
}

// handleGetGuideline returns one parameter's guideline, aliases accepted
func (s *Server) handleGetGuideline(c *gin.Context) {
	g, ok := s.deps.Table.Lookup(c.Param("parameter"))
	if !ok {
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrCodeNotFound, "No guideline for parameter", c.Param("parameter"), requestID(c)))
		return
	}
	c.JSON(http.StatusOK, g)
}
