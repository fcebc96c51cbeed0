package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
	"github.com/water-quality-server/internal/middleware"
	"github.com/water-quality-server/internal/service"
)

// Assessor is the slice of the assessment service the HTTP API serves.
type Assessor interface {
	Assess(ctx context.Context, sample *domain.Sample) (*domain.AssessmentReport, error)
	Analyze(ctx context.Context, sample *domain.Sample) (*service.AnalysisResult, error)
	Recommend(readings []domain.Reading) *service.Assembly
	GetAssessment(ctx context.Context, id int64) (*domain.AssessmentReport, error)
	ListMeasurements(ctx context.Context, filter domain.MeasurementFilter) ([]*domain.Measurement, error)
	RecentMeasurements(ctx context.Context, hours int, location string) ([]*domain.Measurement, error)
	RecommendationsFor(ctx context.Context, measurementID int64, priority string) ([]*domain.Recommendation, error)
	UpdateRecommendation(ctx context.Context, id int64, update domain.RecommendationUpdate) (*domain.Recommendation, error)
	DeleteMeasurement(ctx context.Context, id int64) error
	Health(ctx context.Context) error
	ModelVersion() string
}

// Feed hands out live assessment subscriptions.
type Feed interface {
	Subscribe() (<-chan []byte, func())
}

// MetricsProvider observes requests and exposes the scrape endpoint.
type MetricsProvider interface {
	middleware.RequestObserver
	Handler() http.Handler
}

// Dependencies are the components the server routes to. Feed and Metrics
// are optional; their routes are not registered when nil.
type Dependencies struct {
	Assessor Assessor
	Trends   domain.TrendReporter
	Table    *guideline.Table
	Feed     Feed
	Metrics  MetricsProvider
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	server := &Server{
		configManager: configManager,
		deps:          deps,
		logger:        logger,
		router:        router,
	}
	server.setupRoutes(&cfg.Server)

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(cfg *domain.ServerConfig) {
	// Long-lived routes stay outside the request deadline
	if s.deps.Feed != nil {
		s.router.GET("/ws/assessments", s.handleLiveFeed)
	}
	if s.deps.Metrics != nil && cfg.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	r := s.router.Group("/")
	r.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	if cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	r.GET("/health", s.handleHealth)

	r.POST("/predict", s.handlePredict)
	r.POST("/analyze", s.handleAnalyze)
	r.POST("/api/recommend", s.handleRecommend)

	measurements := r.Group("/measurements")
	{
		measurements.GET("", s.handleListMeasurements)
		measurements.GET("/recent", s.handleRecentMeasurements)
		measurements.GET("/:id", s.handleGetMeasurement)
		measurements.DELETE("/:id", s.handleDeleteMeasurement)
		measurements.GET("/:id/recommendations", s.handleMeasurementRecommendations)
	}
	r.PATCH("/recommendations/:id", s.handleUpdateRecommendation)

	r.GET("/guidelines", s.handleListGuidelines)
	r.GET("/guidelines/:parameter", s.handleGetGuideline)

	if s.deps.Trends != nil {
		r.GET("/trends/:location", s.handleTrends)
		r.GET("/dashboard/compare", s.handleComparisonDashboard)
		r.GET("/dashboard/:location", s.handleOverviewDashboard)
		r.GET("/dashboard/:location/parameter/:parameter", s.handleParameterDashboard)
		r.GET("/export/:location", s.handleExport)
	}
}
