package ingest

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/metrics"
)

type fakeAssessor struct {
	samples []*domain.Sample
	err     error
}

func (f *fakeAssessor) Assess(_ context.Context, sample *domain.Sample) (*domain.AssessmentReport, error) {
	if err := sample.Validate(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	f.samples = append(f.samples, sample)
	m := sample.Measurement()
	m.ID = int64(len(f.samples))
	return &domain.AssessmentReport{
		Measurement: m,
		Prediction:  &domain.Prediction{ID: m.ID, MeasurementID: m.ID, IsPotable: true, Confidence: 0.9},
	}, nil
}

type countingObserver map[string]int

func (c countingObserver) ObserveIngest(outcome string) { c[outcome]++ }

func newTestSubscriber(a Assessor, obs Observer) *Subscriber {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewSubscriber(domain.MQTTConfig{Broker: "tcp://localhost:1883"}, a, obs, logger)
}

const validPayload = `{"Temperature": 21.5, "D.O": 6.8, "PH": 7.3, "Conductivity": 420,
	"B.O.D": 1.1, "Nitrate": 3.2, "Fecalcaliform": 0, "Totalcaliform": 10,
	"Lat": 12.97, "Lon": 77.59}`

func TestHandleMessageUsesTopicStation(t *testing.T) {
	assessor := &fakeAssessor{}
	obs := countingObserver{}
	s := newTestSubscriber(assessor, obs)

	report, err := s.HandleMessage(context.Background(), "water-quality/samples/river-intake", []byte(validPayload))
	require.NoError(t, err)
	assert.Equal(t, "river-intake", report.Measurement.Location)
	assert.Equal(t, 7.3, report.Measurement.PH)
	assert.Equal(t, 1, obs[metrics.IngestAssessed])
}

func TestHandleMessageKeepsPayloadLocation(t *testing.T) {
	assessor := &fakeAssessor{}
	s := newTestSubscriber(assessor, nil)

	payload := `{"location": "Well 4", ` + validPayload[1:]
	report, err := s.HandleMessage(context.Background(), "water-quality/samples/other", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "Well 4", report.Measurement.Location)
}

func TestHandleMessageDropsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"not json", "water-quality/samples/a", `{not json`},
		{"non-numeric value", "water-quality/samples/a", `{"PH": "seven"}`},
		{"missing fields", "water-quality/samples/a", `{"PH": 7}`},
		{"no station", "water-quality/samples/+", validPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessor := &fakeAssessor{}
			obs := countingObserver{}
			s := newTestSubscriber(assessor, obs)

			_, err := s.HandleMessage(context.Background(), tt.topic, []byte(tt.payload))
			assert.True(t, errors.Is(err, ErrInvalidPayload))
			assert.Equal(t, 1, obs[metrics.IngestInvalid])
			assert.Empty(t, assessor.samples)
		})
	}
}

func TestHandleMessagePipelineFailure(t *testing.T) {
	obs := countingObserver{}
	s := newTestSubscriber(&fakeAssessor{err: errors.New("database unavailable")}, obs)

	_, err := s.HandleMessage(context.Background(), "water-quality/samples/a", []byte(validPayload))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidPayload))
	assert.Equal(t, 1, obs[metrics.IngestFailed])
}

func TestStationFromTopic(t *testing.T) {
	assert.Equal(t, "north", stationFromTopic("water-quality/samples/north"))
	assert.Equal(t, "", stationFromTopic("water-quality/samples/#"))
	assert.Equal(t, "solo", stationFromTopic("solo"))
}

func TestHandleMessageRejectsNullReading(t *testing.T) {
	a := &fakeAssessor{}
	obs := countingObserver{}
	s := newTestSubscriber(a, obs)

	_, err := s.HandleMessage(context.Background(), "water-quality/samples/north",
		[]byte(`{"PH": null, "Temperature": 21.5}`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))
	assert.Empty(t, a.samples)
	assert.Equal(t, 1, obs[metrics.IngestInvalid])
}

// unreachableBroker returns the address of a port nothing listens on.
func unreachableBroker(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "tcp://" + addr
}

func TestRunStopsWhileBrokerUnreachable(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(context.CancelFunc)
	}{
		{"already cancelled", func(cancel context.CancelFunc) { cancel() }},
		{"cancelled while retrying", func(cancel context.CancelFunc) {
			time.AfterFunc(100*time.Millisecond, cancel)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			logger.SetLevel(logrus.ErrorLevel)
			s := NewSubscriber(domain.MQTTConfig{Broker: unreachableBroker(t)}, &fakeAssessor{}, nil, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.cancel(cancel)

			done := make(chan error, 1)
			go func() { done <- s.Run(ctx) }()

			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after the context was cancelled")
			}
		})
	}
}
