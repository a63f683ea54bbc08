package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
	"github.com/noah-isme/skilltest-api/internal/queue"
	"github.com/noah-isme/skilltest-api/pkg/webhook"
)

const outboxSecret = "outbox-secret"

type webhookReceiver struct {
	mu       sync.Mutex
	hits     map[string]int
	status   int
	badSigns int
}

func newWebhookReceiver(status int) *webhookReceiver {
	return &webhookReceiver{hits: map[string]int{}, status: status}
}

func (r *webhookReceiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)

	r.mu.Lock()
	r.hits[req.Header.Get(webhook.DeliveryHeader)]++
	if !webhook.Verify(outboxSecret, body, req.Header.Get(webhook.SignatureHeader)) {
		r.badSigns++
	}
	r.mu.Unlock()

	w.WriteHeader(r.status)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (r *webhookReceiver) counts() (map[string]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]int, len(r.hits))
	for id, n := range r.hits {
		copied[id] = n
	}
	return copied, r.badSigns
}

func setupOutbox(t *testing.T, target string) (NotificationOutbox, *gorm.DB, *serviceClock) {
	t.Helper()
	db := setupServiceDB(t)
	clock := newServiceClock()
	store := queue.NewStore[models.OutboxEntry](db, NotificationQueueName, queue.Options{Now: clock.Now})
	client := webhook.NewClient(webhook.Config{Secret: outboxSecret, Timeout: 5 * time.Second, Logger: zerolog.Nop()})
	outbox := NewNotificationOutbox(store, client, NotificationOutboxConfig{TargetURL: target}, validator.New(), zerolog.Nop())
	return outbox, db, clock
}

func TestOutboxDeliversEachEntryOnceAcrossWorkers(t *testing.T) {
	receiver := newWebhookReceiver(http.StatusOK)
	server := httptest.NewServer(receiver)
	defer server.Close()

	outbox, db, _ := setupOutbox(t, server.URL)
	ctx := context.Background()

	const events = 6
	for i := 0; i < events; i++ {
		outbox.Publish(ctx, models.EventTestCompleted, map[string]interface{}{"sequence": i})
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				processed, err := outbox.DeliverOnce(ctx)
				if err != nil || !processed {
					return
				}
			}
		}()
	}
	wg.Wait()

	hits, badSigns := receiver.counts()
	require.Len(t, hits, events)
	for id, n := range hits {
		require.Equal(t, 1, n, "delivery %s", id)
	}
	require.Zero(t, badSigns)

	var succeeded int64
	require.NoError(t, db.Model(&models.OutboxEntry{}).Where("status = ?", models.QueueStatusSucceeded).Count(&succeeded).Error)
	require.Equal(t, int64(events), succeeded)
}

func TestOutboxSchedulesRetryOnFailure(t *testing.T) {
	receiver := newWebhookReceiver(http.StatusInternalServerError)
	server := httptest.NewServer(receiver)
	defer server.Close()

	outbox, db, clock := setupOutbox(t, server.URL)
	ctx := context.Background()

	outbox.Publish(ctx, models.EventTestAssigned, map[string]string{"attempt_id": "a-1"})

	processed, err := outbox.DeliverOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	var entry models.OutboxEntry
	require.NoError(t, db.Take(&entry).Error)
	require.Equal(t, models.QueueStatusFailed, entry.Status)
	require.Equal(t, 1, entry.Attempts)
	require.NotNil(t, entry.HTTPStatus)
	require.Equal(t, http.StatusInternalServerError, *entry.HTTPStatus)
	require.NotNil(t, entry.NextRetryAt)
	require.WithinDuration(t, clock.Now().Add(30*time.Second), *entry.NextRetryAt, time.Millisecond)

	processed, err = outbox.DeliverOnce(ctx)
	require.NoError(t, err)
	require.False(t, processed, "entry is not eligible before its retry time")

	clock.Advance(31 * time.Second)
	processed, err = outbox.DeliverOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	clock.Advance(61 * time.Second)
	processed, err = outbox.DeliverOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	response, err := outbox.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, models.QueueStatusFailed, response.Status)
	require.Equal(t, 3, response.Attempts)
	require.Nil(t, response.NextRetryAt, "exhausted entries stay failed")

	hits, _ := receiver.counts()
	require.Equal(t, 3, hits[entry.ID])
}

func TestOutboxDropsEventsWithoutTarget(t *testing.T) {
	outbox, db, _ := setupOutbox(t, "")
	ctx := context.Background()

	outbox.Publish(ctx, models.EventTestAssigned, map[string]string{"attempt_id": "a-1"})

	var count int64
	require.NoError(t, db.Model(&models.OutboxEntry{}).Count(&count).Error)
	require.Zero(t, count)

	_, err := outbox.Create(ctx, dto.NotificationCreateRequest{
		EventType: "custom",
		Payload:   json.RawMessage(`{"hello":"world"}`),
	})
	require.ErrorIs(t, err, ErrNoWebhookTarget)

	created, err := outbox.Create(ctx, dto.NotificationCreateRequest{
		EventType: "custom",
		Payload:   json.RawMessage(`{"hello":"world"}`),
		TargetURL: "https://receiver.example.test/hook",
	})
	require.NoError(t, err)
	require.Equal(t, models.QueueStatusPending, created.Status)
	require.Equal(t, "https://receiver.example.test/hook", created.TargetURL)

	_, err = outbox.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestOutboxEventEnvelope(t *testing.T) {
	outbox, db, clock := setupOutbox(t, "https://receiver.example.test/hook")
	outbox.(*notificationOutbox).now = clock.Now

	outbox.Publish(context.Background(), models.EventDeadlineWarning, map[string]int{"minutes_remaining": 42})

	var entry models.OutboxEntry
	require.NoError(t, db.Take(&entry).Error)

	var event OutboxEvent
	require.NoError(t, json.Unmarshal(entry.Payload, &event))
	require.Equal(t, models.EventDeadlineWarning, event.Event)
	require.True(t, clock.Now().Equal(event.OccurredAt))
	require.Equal(t, map[string]interface{}{"minutes_remaining": float64(42)}, event.Data)
	require.Equal(t, 3, entry.MaxAttempts)
}

func TestOutboxEventCarriesCorrelationID(t *testing.T) {
	outbox, db, _ := setupOutbox(t, "https://receiver.example.test/hook")
	ctx := observability.WithCorrelationID(context.Background(), "req-42")

	outbox.Publish(ctx, models.EventTestCompleted, map[string]string{"attempt_id": "a-1"})

	var entry models.OutboxEntry
	require.NoError(t, db.Take(&entry).Error)

	var event OutboxEvent
	require.NoError(t, json.Unmarshal(entry.Payload, &event))
	require.Equal(t, "req-42", event.CorrelationID)
}
