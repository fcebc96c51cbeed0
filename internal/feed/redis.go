package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "water-quality:assessments"

// RedisRelay publishes reports to a Redis channel and relays everything on
// that channel into a local Hub, so every server instance sees every
// assessment. It implements domain.Publisher.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *logrus.Logger
}

// NewRedisRelay creates a relay. Run must be started for local subscribers
// to receive anything.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *logrus.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish sends the encoded report to the Redis channel.
func (r *RedisRelay) Publish(ctx context.Context, report *domain.AssessmentReport) error {
	msg, err := Encode(report)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", r.channel, err)
	}
	return nil
}

// Run relays channel messages into the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so publishes after Run starts
	// are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	r.logger.WithField("channel", r.channel).Info("Live feed relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.hub.Broadcast([]byte(msg.Payload))
		}
	}
}

// NewPublisher returns the relay when a Redis client is available and the
// bare hub otherwise. The relay must still be Run by the caller.
func NewPublisher(client *redis.Client, channel string, hub *Hub, logger *logrus.Logger) (domain.Publisher, *RedisRelay) {
	if client == nil {
		return hub, nil
	}
	relay := NewRedisRelay(client, channel, hub, logger)
	return relay, relay
}
