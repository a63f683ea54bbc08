package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
)

const attemptFeedBufferSize = 32

// AttemptFeed fans attempt transitions out to live staff dashboards. Events
// are relayed between replicas over NATS when a connection is configured.
type AttemptFeed interface {
	Publish(eventType string, attempt models.Attempt)
	Subscribe() (<-chan dto.AttemptEvent, func())
	Start(ctx context.Context) error
}

type attemptFeedMessage struct {
	Source string           `json:"source"`
	Event  dto.AttemptEvent `json:"event"`
}

type attemptFeed struct {
	nats    *nats.Conn
	subject string
	nodeID  string
	logger  zerolog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	subscribers map[chan dto.AttemptEvent]struct{}
}

// NewAttemptFeed constructs a feed. conn may be nil for a single replica.
func NewAttemptFeed(conn *nats.Conn, subject string, logger zerolog.Logger) AttemptFeed {
	return &attemptFeed{
		nats:        conn,
		subject:     subject,
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "attempt_feed").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		subscribers: make(map[chan dto.AttemptEvent]struct{}),
	}
}

func (f *attemptFeed) Publish(eventType string, attempt models.Attempt) {
	event := dto.AttemptEvent{
		Type:       eventType,
		AttemptID:  attempt.ID,
		TestID:     attempt.TestID,
		Status:     attempt.Status,
		Percentage: attempt.Percentage,
		OccurredAt: f.now(),
	}
	f.broadcast(event)

	if f.nats == nil || f.subject == "" {
		return
	}
	payload, err := json.Marshal(attemptFeedMessage{Source: f.nodeID, Event: event})
	if err != nil {
		f.logger.Warn().Err(err).Msg("failed to encode attempt event")
		return
	}
	if err := f.nats.Publish(f.subject, payload); err != nil {
		f.logger.Warn().Err(err).Msg("failed to relay attempt event")
	}
}

func (f *attemptFeed) Subscribe() (<-chan dto.AttemptEvent, func()) {
	ch := make(chan dto.AttemptEvent, attemptFeedBufferSize)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	observability.StreamClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subscribers, ch)
			close(ch)
			f.mu.Unlock()
			observability.StreamClients().Dec()
		})
	}
	return ch, cleanup
}

// Start relays events published by other replicas until ctx is cancelled.
func (f *attemptFeed) Start(ctx context.Context) error {
	if f.nats == nil || f.subject == "" {
		<-ctx.Done()
		return nil
	}

	sub, err := f.nats.Subscribe(f.subject, func(msg *nats.Msg) {
		f.handleMessage(msg.Data)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		f.logger.Warn().Err(err).Msg("failed to drain attempt event subscription")
	}
	return nil
}

func (f *attemptFeed) handleMessage(data []byte) {
	var message attemptFeedMessage
	if err := json.Unmarshal(data, &message); err != nil {
		f.logger.Warn().Err(err).Msg("invalid attempt event payload")
		return
	}
	if message.Source == f.nodeID {
		return
	}
	f.broadcast(message.Event)
}

// broadcast drops events for subscribers whose buffer is full.
func (f *attemptFeed) broadcast(event dto.AttemptEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
