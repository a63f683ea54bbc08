package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalUserRole, "admin")
		return c.Next()
	})
	app.Use(RequireRole("admin", "hr"))
	app.Get("/staff", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalUserRole, "candidate")
		return c.Next()
	})
	app.Use(RequireRole("admin", "hr"))
	app.Get("/staff", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var body struct {
		Error   string `json:"error"`
		Details struct {
			RequiredRoles []string `json:"required_roles"`
		} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "forbidden", body.Error)
	require.Equal(t, []string{"admin", "hr"}, body.Details.RequiredRoles)
}

func TestRateLimitKeysByAccessToken(t *testing.T) {
	app := fiber.New()
	app.Get("/tests/:token", RateLimit("public", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	get := func(path string) int {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, get("/tests/aaa"))
	require.Equal(t, fiber.StatusOK, get("/tests/aaa"))
	require.Equal(t, fiber.StatusTooManyRequests, get("/tests/aaa"))
	require.Equal(t, fiber.StatusOK, get("/tests/bbb"), "each token has its own budget")
}

func TestRouteTemplateHidesTokens(t *testing.T) {
	app := fiber.New()
	var route string
	app.Get("/api/v1/public/tests/:token", func(c *fiber.Ctx) error {
		route = routeTemplate(c)
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/public/tests/secret-token", nil))
	require.NoError(t, err)
	require.Equal(t, "/api/v1/public/tests/:token", route)
}
