package queue

import (
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Waker delivers wake-up signals to a worker of the named queue.
type Waker interface {
	Signal
	Subscribe(queue string) (<-chan struct{}, func(), error)
}

// LocalSignal fans signals out to workers running in this process.
type LocalSignal struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan struct{}]struct{}
}

// NewLocalSignal constructs an in-process waker.
func NewLocalSignal() *LocalSignal {
	return &LocalSignal{subscribers: make(map[string]map[chan struct{}]struct{})}
}

// Notify wakes every subscriber of the queue without blocking.
func (s *LocalSignal) Notify(queue string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers[queue] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a buffered wake-up channel for the queue.
func (s *LocalSignal) Subscribe(queue string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if _, ok := s.subscribers[queue]; !ok {
		s.subscribers[queue] = make(map[chan struct{}]struct{})
	}
	s.subscribers[queue][ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers[queue], ch)
	}
	return ch, cancel, nil
}

// NATSSignal publishes wake-up signals on NATS so workers in other replicas
// skip their idle sleep.
type NATSSignal struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSSignal constructs a NATS-backed waker. Subjects are "<prefix>.<queue>".
func NewNATSSignal(conn *nats.Conn, prefix string, logger zerolog.Logger) *NATSSignal {
	return &NATSSignal{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger.With().Str("component", "queue_signal").Logger(),
	}
}

func (s *NATSSignal) subject(queue string) string {
	if s.prefix == "" {
		return queue
	}
	return s.prefix + "." + queue
}

// Notify publishes an empty message. Failures only delay workers until their next poll.
func (s *NATSSignal) Notify(queue string) {
	if s == nil || s.conn == nil {
		return
	}
	if err := s.conn.Publish(s.subject(queue), nil); err != nil {
		s.logger.Warn().Err(err).Str("queue", queue).Msg("failed to publish queue wake-up")
	}
}

// Subscribe listens for wake-ups on the queue subject.
func (s *NATSSignal) Subscribe(queue string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	sub, err := s.conn.Subscribe(s.subject(queue), func(_ *nats.Msg) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, nil, err
	}

	cancel := func() {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Debug().Err(err).Str("queue", queue).Msg("failed to unsubscribe queue wake-up")
		}
	}
	return ch, cancel, nil
}
