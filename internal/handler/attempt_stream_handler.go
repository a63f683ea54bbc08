package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skilltest-api/internal/middleware"
	"github.com/noah-isme/skilltest-api/internal/service"
)

const streamPingInterval = 25 * time.Second

// AttemptStreamHandler pushes attempt transitions to staff dashboards over a websocket.
type AttemptStreamHandler struct {
	feed   service.AttemptFeed
	logger zerolog.Logger
}

// NewAttemptStreamHandler constructs the stream handler.
func NewAttemptStreamHandler(feed service.AttemptFeed, logger zerolog.Logger) *AttemptStreamHandler {
	return &AttemptStreamHandler{
		feed:   feed,
		logger: logger.With().Str("component", "attempt_stream_handler").Logger(),
	}
}

// Register binds the stream route. It must be registered before /:id routes.
func (h *AttemptStreamHandler) Register(router fiber.Router) {
	router.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/stream", websocket.New(h.handleConnection))
}

func (h *AttemptStreamHandler) handleConnection(conn *websocket.Conn) {
	staffID, _ := conn.Locals(middleware.LocalUserID).(string)
	testID := strings.TrimSpace(conn.Query("test_id"))
	correlationID, _ := conn.Locals(middleware.LocalCorrelationID).(string)
	logger := h.logger.With().
		Str("staff_id", staffID).
		Str("test_id", testID).
		Str("correlation_id", correlationID).
		Logger()

	events, cancelSubscription := h.feed.Subscribe()
	defer cancelSubscription()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the reader only detects disconnects; clients never send commands
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info().Msg("attempt stream connected")
	defer logger.Info().Msg("attempt stream disconnected")

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if testID != "" && event.TestID != testID {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("attempt stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
