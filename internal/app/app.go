// Package app assembles the assessment pipeline from configuration. The HTTP
// server, the MCP server and the admin CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/config"
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

// App holds the wired components
type App struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	Repo      domain.Repository
	Table     *guideline.Table
	Predictor domain.Predictor
	Service   *service.AssessmentService
	Analyzer  *trends.Analyzer
	Hub       *feed.Hub
	Relay     *feed.RedisRelay // nil without Redis
	Metrics   *metrics.Metrics
	Redis     *redis.Client // nil without Redis

	closers []func()
}

// New builds every component. Redis is optional: when it is configured but
// unreachable the app runs with the in-memory cache and an in-process feed.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	table, err := guideline.Load(cfg.Guidelines.File)
	if err != nil {
		return nil, fmt.Errorf("loading guidelines: %w", err)
	}
	a.Table = table

	repo, err := OpenRepository(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.Repo = repo
	a.closers = append(a.closers, func() { repo.Close() })

	if cfg.Cache.Enabled && cfg.Cache.RedisURL != "" {
		client, err := predictor.NewRedisClient(ctx, cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing with in-process cache and feed")
		} else {
			a.Redis = client
			a.closers = append(a.closers, func() { client.Close() })
		}
	}

	p, err := predictor.New(cfg.Predictor, cfg.Cache, a.Redis, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating predictor: %w", err)
	}
	a.Predictor = p

	a.Hub = feed.NewHub(feed.DefaultBuffer, logger)
	publisher, relay := feed.NewPublisher(a.Redis, cfg.Cache.FeedChannel, a.Hub, logger)
	a.Relay = relay

	a.Service = service.NewAssessmentService(logger, p, repo,
		service.NewRecommendationAssembler(logger, table),
		service.AssessmentOptions{
			PredictTimeout: cfg.Assessment.PredictTimeout,
			PersistTimeout: cfg.Assessment.PersistTimeout,
			Publisher:      publisher,
			Recorder:       a.Metrics,
		})
	a.Analyzer = trends.NewAnalyzer(repo, table, logger)

	return a, nil
}

// Close releases storage and Redis connections in reverse order
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// OpenRepository connects to the configured store. Postgres migrations run
// first when auto_migrate is set.
func OpenRepository(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger) (domain.Repository, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLRepository(db, logger), nil

	case "", "postgres":
		if cfg.AutoMigrate {
			if err := Migrate(cfg, logger, func(r *database.MigrationRunner) error { return r.Up(ctx) }); err != nil {
				return nil, err
			}
		}
		db, err := database.OpenPostgres(ctx, config.DatabaseURL(cfg), database.PoolSettingsFrom(cfg), logger)
		if err != nil {
			return nil, err
		}
		return &pgRepository{PostgresRepository: repository.NewPostgresRepository(db.Pool, logger), db: db}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate opens a migration runner against the Postgres database and runs fn
func Migrate(cfg domain.DatabaseConfig, logger *logrus.Logger, fn func(*database.MigrationRunner) error) error {
	if cfg.Driver == "sqlite" {
		return fmt.Errorf("migrations apply to postgres only; sqlite creates its schema on open")
	}
	runner, err := database.NewMigrationRunner(config.DatabaseURL(cfg), logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return fn(runner)
}

// pgRepository closes the pool along with the repository
type pgRepository struct {
	*repository.PostgresRepository
	db *database.Postgres
}

func (r *pgRepository) Close() error {
	r.db.Close()
	return nil
}
