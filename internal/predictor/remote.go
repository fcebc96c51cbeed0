package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/water-quality-server/internal/domain"
)

// ErrRemoteUnavailable is returned while the circuit breaker is open.
var ErrRemoteUnavailable = errors.New("remote predictor unavailable")

// RemoteConfig configures the HTTP model client
type RemoteConfig struct {
	BaseURL      string
	APIKey       string
	ModelVersion string
	Timeout      time.Duration
	RateLimit    int // requests per second
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// RemotePredictor calls an external model service. The request body uses the
// dataset spellings (D.O, B.O.D, pH, ...) the model was trained with.
type RemotePredictor struct {
	baseURL    string
	apiKey     string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

type remoteResponse struct {
	IsPotable    *bool    `json:"is_potable"`
	Potable      *bool    `json:"potable"`
	Confidence   *float64 `json:"confidence"`
	ModelVersion string   `json:"model_version"`
}

// NewRemotePredictor creates a new remote predictor client
func NewRemotePredictor(cfg RemoteConfig, logger *logrus.Logger) *RemotePredictor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "remote"
	}

	r := &RemotePredictor{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		version:    cfg.ModelVersion,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		logger:     logger,
	}

	maxFailures := cfg.MaxFailures
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "predictor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return r
}

// Predict implements domain.Predictor.
func (r *RemotePredictor) Predict(ctx context.Context, features domain.Features) (domain.Verdict, error) {
	vector, err := features.Vector()
	if err != nil {
		return domain.Verdict{}, err
	}

	payload := make(map[string]float64, len(vector))
	for i, name := range domain.FeatureOrder {
		payload[domain.ExternalName(name)] = vector[i]
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return domain.Verdict{}, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.call(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Verdict{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		return domain.Verdict{}, err
	}
	return result.(domain.Verdict), nil
}

// ModelVersion implements domain.Predictor.
func (r *RemotePredictor) ModelVersion() string {
	return r.version
}

func (r *RemotePredictor) call(ctx context.Context, payload map[string]float64) (domain.Verdict, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Verdict{}, fmt.Errorf("predictor returned status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Verdict{}, fmt.Errorf("failed to decode response: %w", err)
	}

	potable := out.IsPotable
	if potable == nil {
		potable = out.Potable
	}
	if potable == nil || out.Confidence == nil {
		return domain.Verdict{}, errors.New("predictor response is missing potable or confidence")
	}
	return domain.Verdict{IsPotable: *potable, Confidence: *out.Confidence}, nil
}
