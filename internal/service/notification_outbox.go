package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
	"github.com/noah-isme/skilltest-api/internal/queue"
	"github.com/noah-isme/skilltest-api/pkg/webhook"
)

// NotificationQueueName labels the outbox queue in metrics and wake-up signals.
const NotificationQueueName = "notifications"

const finalizeTimeout = 10 * time.Second

// WebhookDeliverer performs the signed outbound call for one outbox entry.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, delivery webhook.Delivery) (webhook.Result, error)
}

// OutboxEvent is the JSON body delivered to the webhook target.
type OutboxEvent struct {
	Event         string      `json:"event"`
	OccurredAt    time.Time   `json:"occurred_at"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Data          interface{} `json:"data"`
}

// NotificationOutbox records outbound events and delivers them at least once.
type NotificationOutbox interface {
	Publish(ctx context.Context, eventType string, data interface{})
	EnqueueTx(tx *gorm.DB, eventType string, data interface{}) (*models.OutboxEntry, error)
	Notify()
	Create(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	Get(ctx context.Context, id string) (dto.NotificationResponse, error)
	DeliverOnce(ctx context.Context) (bool, error)
	ReclaimStale(ctx context.Context) (int64, error)
}

// NotificationOutboxConfig tunes delivery.
type NotificationOutboxConfig struct {
	TargetURL   string
	MaxAttempts int
	StaleAfter  time.Duration
}

type notificationOutbox struct {
	queue     *queue.Store[models.OutboxEntry]
	client    WebhookDeliverer
	cfg       NotificationOutboxConfig
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewNotificationOutbox constructs the outbox over its queue store.
func NewNotificationOutbox(store *queue.Store[models.OutboxEntry], client WebhookDeliverer, cfg NotificationOutboxConfig, validate *validator.Validate, logger zerolog.Logger) NotificationOutbox {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &notificationOutbox{
		queue:     store,
		client:    client,
		cfg:       cfg,
		validator: validate,
		logger:    logger.With().Str("component", "notification_outbox").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/skilltest-api/internal/service/notification_outbox"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Publish enqueues an event and never fails the caller; errors are logged.
func (s *notificationOutbox) Publish(ctx context.Context, eventType string, data interface{}) {
	entry, err := s.newEntry(ctx, eventType, data, "")
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build outbox event")
		return
	}
	if entry == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to enqueue outbox event")
		return
	}
	s.logger.Debug().Str("event_type", eventType).Str("delivery_id", entry.ID).Msg("outbox event enqueued")
}

// EnqueueTx writes the event inside the caller's transaction. It returns nil
// when no delivery target is configured. Call Notify after commit.
func (s *notificationOutbox) EnqueueTx(tx *gorm.DB, eventType string, data interface{}) (*models.OutboxEntry, error) {
	entry, err := s.newEntry(tx.Statement.Context, eventType, data, "")
	if err != nil || entry == nil {
		return nil, err
	}
	if err := s.queue.EnqueueTx(tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *notificationOutbox) Notify() {
	s.queue.Notify()
}

func (s *notificationOutbox) Create(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	var data interface{}
	if err := json.Unmarshal(payload.Payload, &data); err != nil {
		return dto.NotificationResponse{}, fmt.Errorf("decode notification payload: %w", err)
	}

	entry, err := s.newEntry(ctx, strings.TrimSpace(payload.EventType), data, strings.TrimSpace(payload.TargetURL))
	if err != nil {
		return dto.NotificationResponse{}, err
	}
	if entry == nil {
		return dto.NotificationResponse{}, ErrNoWebhookTarget
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(*entry), nil
}

func (s *notificationOutbox) Get(ctx context.Context, id string) (dto.NotificationResponse, error) {
	entry, err := s.queue.Get(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(entry), nil
}

// DeliverOnce claims one due entry and delivers it. It reports whether an
// entry was processed; delivery failures are recorded on the entry, not returned.
func (s *notificationOutbox) DeliverOnce(ctx context.Context) (bool, error) {
	entry, err := s.queue.ClaimOne(ctx)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	spanCtx, span := s.tracer.Start(ctx, "outbox.deliver", trace.WithAttributes(
		attribute.String("outbox.id", entry.ID),
		attribute.String("outbox.event_type", entry.EventType),
		attribute.Int("outbox.attempt", entry.Attempts+1),
	))
	defer span.End()

	start := time.Now()
	result, deliverErr := s.client.Deliver(spanCtx, webhook.Delivery{
		ID:        entry.ID,
		EventType: entry.EventType,
		URL:       entry.TargetURL,
		Payload:   entry.Payload,
	})
	observability.DeliveryLatency().WithLabelValues(entry.EventType).Observe(time.Since(start).Seconds())

	fields := map[string]interface{}{}
	if result.StatusCode > 0 {
		fields["http_status"] = result.StatusCode
		fields["response_body"] = result.Body
	}

	// the outcome must be recorded even when shutdown cancels ctx mid-delivery
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	logger := s.logger.With().Str("delivery_id", entry.ID).Str("event_type", entry.EventType).Logger()

	if deliverErr == nil {
		if err := s.queue.Complete(finalizeCtx, entry.ID, fields); err != nil {
			span.RecordError(err)
			return true, err
		}
		span.SetStatus(codes.Ok, "delivered")
		logger.Info().Int("http_status", result.StatusCode).Msg("webhook delivered")
		return true, nil
	}

	span.RecordError(deliverErr)
	span.SetStatus(codes.Error, "delivery failed")

	outcome, err := s.queue.Fail(finalizeCtx, entry.ID, deliverErr, fields)
	if err != nil {
		return true, err
	}

	event := logger.Warn().Err(deliverErr).Int("attempts", outcome.Attempts)
	if outcome.WillRetry && outcome.NextRetryAt != nil {
		event.Time("next_retry_at", *outcome.NextRetryAt).Msg("webhook delivery failed, retry scheduled")
	} else {
		event.Msg("webhook delivery permanently failed")
	}
	return true, nil
}

func (s *notificationOutbox) ReclaimStale(ctx context.Context) (int64, error) {
	return s.queue.ReclaimStale(ctx, s.cfg.StaleAfter)
}

func (s *notificationOutbox) newEntry(ctx context.Context, eventType string, data interface{}, target string) (*models.OutboxEntry, error) {
	if target == "" {
		target = s.cfg.TargetURL
	}
	if target == "" {
		s.logger.Debug().Str("event_type", eventType).Msg("no webhook target configured, event dropped")
		return nil, nil
	}

	body, err := json.Marshal(OutboxEvent{
		Event:         eventType,
		OccurredAt:    s.now(),
		CorrelationID: observability.CorrelationID(ctx),
		Data:          data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode outbox event: %w", err)
	}

	return &models.OutboxEntry{
		EventType: eventType,
		TargetURL: target,
		Payload:   datatypes.JSON(body),
		QueueFields: models.QueueFields{
			Status:      models.QueueStatusPending,
			MaxAttempts: s.cfg.MaxAttempts,
		},
	}, nil
}
