package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClientDeliverSignsPayload(t *testing.T) {
	var (
		gotSignature string
		gotEvent     string
		gotDelivery  string
		gotBody      []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get(EventHeader)
		gotDelivery = r.Header.Get(DeliveryHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(Config{Secret: "shh", Timeout: time.Second, Logger: zerolog.New(io.Discard)})
	payload := []byte(`{"event":"test_completed"}`)

	result, err := client.Deliver(context.Background(), Delivery{
		ID:        "delivery-1",
		EventType: "test_completed",
		URL:       server.URL,
		Payload:   payload,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, result.StatusCode)
	require.Equal(t, "ok", result.Body)
	require.Equal(t, payload, gotBody)
	require.Equal(t, "test_completed", gotEvent)
	require.Equal(t, "delivery-1", gotDelivery)
	require.True(t, Verify("shh", payload, gotSignature))
	require.False(t, Verify("other", payload, gotSignature))
}

func TestClientDeliverNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{Logger: zerolog.New(io.Discard)})
	result, err := client.Deliver(context.Background(), Delivery{ID: "d", EventType: "e", URL: server.URL, Payload: []byte(`{}`)})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.Equal(t, http.StatusBadGateway, result.StatusCode)
}

func TestClientDeliverTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{Logger: zerolog.New(io.Discard)})
	_, err := client.Deliver(context.Background(), Delivery{ID: "d", EventType: "e", URL: url, Payload: []byte(`{}`)})
	require.Error(t, err)
}

func TestClientDeliverRequiresURL(t *testing.T) {
	client := NewClient(Config{Logger: zerolog.New(io.Discard)})
	_, err := client.Deliver(context.Background(), Delivery{ID: "d", EventType: "e"})
	require.Error(t, err)
}
