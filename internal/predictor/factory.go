package predictor

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

// New builds the configured predictor, wrapped in the verdict cache when
// caching is enabled. rdb may be nil.
func New(cfg domain.PredictorConfig, cache domain.CacheConfig, rdb *redis.Client, logger *logrus.Logger) (domain.Predictor, error) {
	var base domain.Predictor

	switch cfg.Mode {
	case "", "local":
		model := DefaultModel()
		if cfg.ModelFile != "" {
			loaded, err := LoadModel(cfg.ModelFile)
			if err != nil {
				return nil, err
			}
			model = loaded
		}
		base = model
	case "remote":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("predictor.base_url is required in remote mode")
		}
		base = NewRemotePredictor(RemoteConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			ModelVersion: cfg.ModelVersion,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown predictor mode %q", cfg.Mode)
	}

	logger.WithFields(logrus.Fields{
		"mode":    cfg.Mode,
		"version": base.ModelVersion(),
	}).Info("Predictor initialized")

	if !cache.Enabled {
		return base, nil
	}
	return NewCachedPredictor(base, cache.MemoryMaxItems, rdb, cache.DefaultTTL, logger)
}
