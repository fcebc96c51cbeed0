package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/water-quality-server/internal/trends"
)

func queryDays(c *gin.Context) (int, bool) {
	return queryInt(c, "days", trends.DefaultDays)
}

// handleTrends returns the statistical report for a location
func (s *Server) handleTrends(c *gin.Context) {
	days, ok := queryDays(c)
	if !ok {
		return
	}

	report, err := s.deps.Trends.GenerateReport(c.Request.Context(), c.Param("location"), days)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleOverviewDashboard returns every parameter series for a location
func (s *Server) handleOverviewDashboard(c *gin.Context) {
	days, ok := queryDays(c)
	if !ok {
		return
	}

	d, err := s.deps.Trends.CreateOverviewDashboard(c.Request.Context(), c.Param("location"), days)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// handleParameterDashboard returns one parameter's series for a location
func (s *Server) handleParameterDashboard(c *gin.Context) {
	days, ok := queryDays(c)
	if !ok {
		return
	}

	d, err := s.deps.Trends.CreateParameterDashboard(c.Request.Context(), c.Param("location"), c.Param("parameter"), days)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// handleComparisonDashboard compares locations=a,b,c side by side
func (s *Server) handleComparisonDashboard(c *gin.Context) {
	days, ok := queryDays(c)
	if !ok {
		return
	}

	locations := strings.Split(c.Query("locations"), ",")
	d, err := s.deps.Trends.CreateComparisonDashboard(c.Request.Context(), locations, days)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// handleExport streams a location's history as a CSV or Excel attachment
func (s *Server) handleExport(c *gin.Context) {
	days, ok := queryDays(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "csv")
	location := c.Param("location")

	mime, ext, err := trends.ContentType(format)
	if err != nil {
		s.respondError(c, err)
		return
	}

	records, err := s.deps.Trends.HistoricalData(c.Request.Context(), location, days)
	if err != nil {
		s.respondError(c, err)
		return
	}
	data, err := s.deps.Trends.Export(records, format)
	if err != nil {
		s.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("%s_water_quality.%s", sanitizeFilename(location), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, mime, data)
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
