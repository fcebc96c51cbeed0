package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/middleware"
	"github.com/water-quality-server/internal/service"
)

func requestID(c *gin.Context) string {
	return c.GetString(middleware.CorrelationIDKey)
}

// respondError maps service errors onto status codes. Internal failures
// carry no cause detail.
func (s *Server) respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	var assessmentErr *service.AssessmentError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeValidation, validationErr.Error(), validationErr.Field, requestID(c)))
	case errors.Is(err, domain.ErrUnknownParameter):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidInput, err.Error(), "", requestID(c)))
	case errors.Is(err, domain.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidInput, err.Error(), "", requestID(c)))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrCodeNotFound, err.Error(), "", requestID(c)))
	case errors.As(err, &assessmentErr):
		s.logError(c, err)
		code := domain.ErrCodeDatabase
		if assessmentErr.Stage == service.StagePredict {
			code = domain.ErrCodePrediction
		}
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(code, "Assessment failed", "", requestID(c)))
	case errors.Is(err, context.DeadlineExceeded):
		s.logError(c, err)
		c.JSON(http.StatusGatewayTimeout, domain.NewAPIError(domain.ErrCodeInternalServer, "Request timed out", "", requestID(c)))
	default:
		s.logError(c, err)
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.ErrCodeInternalServer, "Internal server error", "", requestID(c)))
	}
}

func (s *Server) logError(c *gin.Context, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"correlation_id": requestID(c),
		"method":         c.Request.Method,
		"route":          c.FullPath(),
	}).Error("Request failed")
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidInput, message, "", requestID(c)))
}
