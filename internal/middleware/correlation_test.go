package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skilltest-api/internal/observability"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		if GetCorrelationID(c) != observability.CorrelationID(c.UserContext()) {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(observability.CorrelationID(c.UserContext()))
	})
	return app
}

func correlationRequest(t *testing.T, app *fiber.App, header, value string) (string, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body), resp.Header.Get(HeaderCorrelationID)
}

func TestCorrelationIDReachesUserContext(t *testing.T) {
	app := correlationApp()

	body, header := correlationRequest(t, app, HeaderCorrelationID, "corr-1")
	require.Equal(t, "corr-1", body)
	require.Equal(t, "corr-1", header)

	body, header = correlationRequest(t, app, fiber.HeaderXRequestID, "req-9")
	require.Equal(t, "req-9", body)
	require.Equal(t, "req-9", header)
}

func TestCorrelationIDReplacesMissingOrOversizedIDs(t *testing.T) {
	app := correlationApp()

	body, header := correlationRequest(t, app, "", "")
	require.Len(t, body, 36)
	require.Equal(t, body, header)

	body, _ = correlationRequest(t, app, HeaderCorrelationID, strings.Repeat("x", maxCorrelationIDLength+1))
	require.Len(t, body, 36)
}
