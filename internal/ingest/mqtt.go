// Package ingest subscribes to field-sensor samples over MQTT and runs each
// one through the assessment pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/metrics"
)

// DefaultTopic carries one JSON sample per message; the last topic level is
// the station name.
const DefaultTopic = "water-quality/samples/+"

// Assessor runs a sample through the pipeline.
type Assessor interface {
	Assess(ctx context.Context, sample *domain.Sample) (*domain.AssessmentReport, error)
}

// Observer counts message outcomes.
type Observer interface {
	ObserveIngest(outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveIngest(string) {}

// ErrInvalidPayload marks a message that was dropped without assessment.
var ErrInvalidPayload = errors.New("invalid sample payload")

// Subscriber consumes samples from an MQTT broker.
type Subscriber struct {
	cfg      domain.MQTTConfig
	assessor Assessor
	observer Observer
	logger   *logrus.Logger
}

// NewSubscriber creates a subscriber. A nil observer discards counts.
func NewSubscriber(cfg domain.MQTTConfig, assessor Assessor, observer Observer, logger *logrus.Logger) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "water-quality-" + time.Now().Format("20060102150405")
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Subscriber{cfg: cfg, assessor: assessor, observer: observer, logger: logger}
}

// HandleMessage decodes and assesses one payload. Undecodable or invalid
// samples are counted and reported as ErrInvalidPayload.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) (*domain.AssessmentReport, error) {
	log := s.logger.WithField("topic", topic)

	var sample domain.Sample
	if err := json.Unmarshal(payload, &sample); err != nil {
		s.observer.ObserveIngest(metrics.IngestInvalid)
		log.WithError(err).Warn("Dropping undecodable sample")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(sample.Location) == "" {
		sample.Location = stationFromTopic(topic)
	}

	report, err := s.assessor.Assess(ctx, &sample)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			s.observer.ObserveIngest(metrics.IngestInvalid)
			log.WithField("field", vErr.Field).Warn("Dropping invalid sample")
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		s.observer.ObserveIngest(metrics.IngestFailed)
		log.WithError(err).Error("Sample assessment failed")
		return nil, err
	}

	s.observer.ObserveIngest(metrics.IngestAssessed)
	log.WithFields(logrus.Fields{
		"measurement_id": report.Measurement.ID,
		"potable":        report.Prediction.IsPotable,
	}).Debug("Sample assessed")
	return report, nil
}

// stationFromTopic returns the last non-wildcard topic level.
func stationFromTopic(topic string) string {
	levels := strings.Split(topic, "/")
	last := levels[len(levels)-1]
	if last == "+" || last == "#" {
		return ""
	}
	return last
}

// Run connects, subscribes and handles messages until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetOrderMatters(false)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		_, _ = s.HandleMessage(ctx, msg.Topic(), msg.Payload())
	}
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, handler)
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.WithError(err).WithField("topic", s.cfg.Topic).Error("MQTT subscribe failed")
			return
		}
		s.logger.WithField("topic", s.cfg.Topic).Info("Subscribed to sensor samples")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.WithError(err).Warn("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		// The connect token only completes once a broker answers.
		s.logger.WithField("broker", s.cfg.Broker).Info("Stopping MQTT ingestion before connecting")
		client.Disconnect(250)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to %s: %w", s.cfg.Broker, err)
	}

	<-ctx.Done()
	s.logger.Info("Stopping MQTT ingestion")
	client.Disconnect(250)
	return nil
}
