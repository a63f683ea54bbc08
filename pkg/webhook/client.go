package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the request body.
	SignatureHeader = "X-Webhook-Signature"
	// EventHeader carries the event type.
	EventHeader = "X-Webhook-Event"
	// DeliveryHeader carries the outbox entry id so receivers can de-duplicate.
	DeliveryHeader = "X-Webhook-Delivery"
	// TimestampHeader carries the unix time of the attempt.
	TimestampHeader = "X-Webhook-Timestamp"

	maxStoredBody = 2048
)

// ErrUnexpectedStatus indicates the receiver answered with a non-2xx status.
var ErrUnexpectedStatus = errors.New("webhook receiver returned non-2xx status")

// Delivery is one signed outbound call.
type Delivery struct {
	ID        string
	EventType string
	URL       string
	Payload   []byte
}

// Result captures what the receiver answered.
type Result struct {
	StatusCode int
	Body       string
}

// Config configures the client.
type Config struct {
	Secret    string
	Timeout   time.Duration
	UserAgent string
	Logger    zerolog.Logger
}

// Client posts signed JSON payloads to webhook receivers.
type Client struct {
	http      *http.Client
	secret    string
	userAgent string
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewClient constructs a webhook client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "skilltest-webhooks/1.0"
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		secret:    cfg.Secret,
		userAgent: cfg.UserAgent,
		tracer:    otel.Tracer("github.com/noah-isme/skilltest-api/pkg/webhook"),
		logger:    cfg.Logger.With().Str("component", "webhook_client").Logger(),
	}
}

// Deliver posts the payload. Transport errors and non-2xx statuses are both
// returned as errors; the Result is filled whenever a response arrived.
func (c *Client) Deliver(ctx context.Context, delivery Delivery) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "webhook.deliver", trace.WithAttributes(
		attribute.String("webhook.event_type", delivery.EventType),
		attribute.String("webhook.delivery_id", delivery.ID),
	))
	defer span.End()

	if strings.TrimSpace(delivery.URL) == "" {
		err := fmt.Errorf("webhook url is empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return Result{}, fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(EventHeader, delivery.EventType)
	req.Header.Set(DeliveryHeader, delivery.ID)
	req.Header.Set(TimestampHeader, strconv.FormatInt(time.Now().Unix(), 10))
	if c.secret != "" {
		req.Header.Set(SignatureHeader, Sign(c.secret, delivery.Payload))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return Result{}, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxStoredBody))
	if readErr != nil {
		c.logger.Debug().Err(readErr).Str("delivery_id", delivery.ID).Msg("failed to read webhook response body")
	}

	result := Result{StatusCode: resp.StatusCode, Body: string(body)}
	span.SetAttributes(attribute.Int("webhook.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return result, err
	}

	span.SetStatus(codes.Ok, "delivered")
	return result, nil
}

// Sign returns the signature header value for a payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value in constant time.
func Verify(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(strings.TrimSpace(signature)))
}
