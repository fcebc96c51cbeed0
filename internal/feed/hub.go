// Package feed fans completed assessment reports out to live subscribers,
// in process or across server instances through Redis pub/sub.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

// DefaultBuffer is the per-subscriber queue length. Messages for a
// subscriber whose queue is full are dropped.
const DefaultBuffer = 32

// Event is the message delivered to subscribers.
type Event struct {
	Type   string                   `json:"type"`
	Report *domain.AssessmentReport `json:"data"`
}

// EventAssessment is the type of a completed assessment event.
const EventAssessment = "assessment"

// Hub is an in-process broadcaster. It implements domain.Publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan []byte]struct{}
	buffer  int
	dropped int
	logger  *logrus.Logger
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int, logger *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[chan []byte]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, h.buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Broadcast delivers an encoded event to every subscriber without blocking.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped++
		}
	}
}

// Publish encodes the report and broadcasts it locally.
func (h *Hub) Publish(_ context.Context, report *domain.AssessmentReport) error {
	msg, err := Encode(report)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Encode wraps a report in an assessment event.
func Encode(report *domain.AssessmentReport) ([]byte, error) {
	msg, err := json.Marshal(Event{Type: EventAssessment, Report: report})
	if err != nil {
		return nil, fmt.Errorf("encoding feed event: %w", err)
	}
	return msg, nil
}
