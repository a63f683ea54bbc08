package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("SKILLTEST_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 3, cfg.Webhook.MaxAttempts)
	require.Equal(t, 60*time.Second, cfg.Sweeper.Interval)
	require.Equal(t, 2*time.Minute, cfg.Sweeper.IdleThreshold)
	require.Equal(t, time.Hour, cfg.Sweeper.WarningWindow)
	require.Equal(t, 750*time.Millisecond, cfg.Workers.AIIdle)
	require.Equal(t, 2*time.Second, cfg.Workers.NotificationErrorBackoff)
	require.Equal(t, 2, cfg.Attempts.ViolationLimit)
	require.Equal(t, "openai", cfg.AI.Provider)
	require.False(t, cfg.Cloudinary.Enabled())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SKILLTEST_JWT_SECRET", "secret")
	t.Setenv("SKILLTEST_APP_PORT", ":9000")
	t.Setenv("SKILLTEST_WEBHOOK_URL", "https://hooks.example.com/events")
	t.Setenv("SKILLTEST_WEBHOOK_MAX_ATTEMPTS", "5")
	t.Setenv("SKILLTEST_AI_PROVIDER", "Gemini")
	t.Setenv("SKILLTEST_SWEEPER_INTERVAL", "15s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddress())
	require.Equal(t, "https://hooks.example.com/events", cfg.Webhook.URL)
	require.Equal(t, 5, cfg.Webhook.MaxAttempts)
	require.Equal(t, "gemini", cfg.AI.Provider)
	require.Equal(t, 15*time.Second, cfg.Sweeper.Interval)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("SKILLTEST_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("SKILLTEST_JWT_SECRET", "secret")
	t.Setenv("SKILLTEST_AI_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}
