package predictor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

// CachedPredictor memoizes verdicts in a local LRU and, when configured, in
// Redis so replicas share results. Cache failures fall through to the inner
// predictor.
type CachedPredictor struct {
	inner  domain.Predictor
	memory *lru.Cache[string, domain.Verdict]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

type cachedVerdict struct {
	Verdict  domain.Verdict `json:"verdict"`
	CachedAt time.Time      `json:"cached_at"`
}

// NewCachedPredictor wraps inner. rdb may be nil to disable the shared tier.
func NewCachedPredictor(inner domain.Predictor, size int, rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) (*CachedPredictor, error) {
	if size <= 0 {
		size = 1000
	}
	memory, err := lru.New[string, domain.Verdict](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedPredictor{
		inner:  inner,
		memory: memory,
		redis:  rdb,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// NewRedisClient parses url and checks connectivity.
func NewRedisClient(ctx context.Context, cfg domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Predict implements domain.Predictor.
func (c *CachedPredictor) Predict(ctx context.Context, features domain.Features) (domain.Verdict, error) {
	vector, err := features.Vector()
	if err != nil {
		return domain.Verdict{}, err
	}
	key := c.key(vector)

	if v, ok := c.memory.Get(key); ok {
		return v, nil
	}

	if c.redis != nil {
		if v, ok := c.getShared(ctx, key); ok {
			c.memory.Add(key, v)
			return v, nil
		}
	}

	v, err := c.inner.Predict(ctx, features)
	if err != nil {
		return domain.Verdict{}, err
	}

	c.memory.Add(key, v)
	if c.redis != nil {
		c.setShared(ctx, key, v)
	}
	return v, nil
}

// ModelVersion implements domain.Predictor.
func (c *CachedPredictor) ModelVersion() string {
	return c.inner.ModelVersion()
}

// Len returns the number of locally cached verdicts.
func (c *CachedPredictor) Len() int {
	return c.memory.Len()
}

func (c *CachedPredictor) key(vector []float64) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelVersion()))
	for _, v := range vector {
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatFloat(v, 'g', -1, 64)))
	}
	return "wq:verdict:" + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedPredictor) getShared(ctx context.Context, key string) (domain.Verdict, bool) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Verdict{}, false
	}
	if err != nil {
		c.logger.WithError(err).Debug("Verdict cache read failed")
		return domain.Verdict{}, false
	}

	var cached cachedVerdict
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return domain.Verdict{}, false
	}
	return cached.Verdict, true
}

func (c *CachedPredictor) setShared(ctx context.Context, key string, v domain.Verdict) {
	data, err := json.Marshal(cachedVerdict{Verdict: v, CachedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("Verdict cache write failed")
	}
}
