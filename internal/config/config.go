package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	DatabaseURL       string
	RedisURL          string
	NATSURL           string
	JWTSecret         string
	CORSAllowOrigins  string
	PublicRateLimit   int
	ShutdownTimeout   time.Duration
	Webhook           WebhookConfig
	Workers           WorkerConfig
	Sweeper           SweeperConfig
	Attempts          AttemptConfig
	AI                AIConfig
	Cloudinary        CloudinaryConfig
	UploadDir         string
	UploadMaxSizeMB   int
	RealtimeSubject   string
	QueueSignalPrefix string
}

// WebhookConfig configures outbound event delivery.
type WebhookConfig struct {
	URL         string
	Secret      string
	MaxAttempts int
	Timeout     time.Duration
}

// WorkerConfig configures the polling intervals of the background queue workers.
type WorkerConfig struct {
	NotificationIdle         time.Duration
	NotificationErrorBackoff time.Duration
	NotificationStaleAfter   time.Duration
	AIIdle                   time.Duration
	AIErrorBackoff           time.Duration
	AIStaleAfter             time.Duration
}

// SweeperConfig configures the deadline sweeper.
type SweeperConfig struct {
	Interval      time.Duration
	IdleThreshold time.Duration
	WarningWindow time.Duration
}

// AttemptConfig configures attempt lifecycle rules.
type AttemptConfig struct {
	ViolationLimit     int
	DefaultExpiryHours int
}

// AIConfig configures the question generation provider.
type AIConfig struct {
	Provider     string
	OpenAIAPIKey string
	GeminiAPIKey string
	Model        string
	Timeout      time.Duration
	MaxQuestions int
}

// CloudinaryConfig holds presentation storage credentials.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether all credentials are present.
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SKILLTEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "SkillTest API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.shutdown_timeout", "10s")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("rate_limit.public_rpm", 120)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("workers.notification_idle", "1s")
	v.SetDefault("workers.notification_error_backoff", "2s")
	v.SetDefault("workers.notification_stale_after", "10m")
	v.SetDefault("workers.ai_idle", "750ms")
	v.SetDefault("workers.ai_error_backoff", "1s")
	v.SetDefault("workers.ai_stale_after", "15m")
	v.SetDefault("sweeper.interval", "60s")
	v.SetDefault("sweeper.idle_threshold", "2m")
	v.SetDefault("sweeper.warning_window", "1h")
	v.SetDefault("attempts.violation_limit", 2)
	v.SetDefault("attempts.default_expiry_hours", 72)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.timeout", "5m")
	v.SetDefault("ai.max_questions", 20)
	v.SetDefault("cloudinary.folder", "skilltest/presentations")
	v.SetDefault("uploads.dir", "uploads/presentations")
	v.SetDefault("uploads.max_mb", 25)
	v.SetDefault("nats.realtime_subject", "skilltest.attempts.events")
	v.SetDefault("nats.queue_prefix", "skilltest.queue")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"app.shutdown_timeout",
		"webhook.timeout",
		"workers.notification_idle",
		"workers.notification_error_backoff",
		"workers.notification_stale_after",
		"workers.ai_idle",
		"workers.ai_error_backoff",
		"workers.ai_stale_after",
		"sweeper.interval",
		"sweeper.idle_threshold",
		"sweeper.warning_window",
		"ai.timeout",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		CORSAllowOrigins: v.GetString("cors.allow_origins"),
		PublicRateLimit:  v.GetInt("rate_limit.public_rpm"),
		ShutdownTimeout:  durations["app.shutdown_timeout"],
		Webhook: WebhookConfig{
			URL:         v.GetString("webhook.url"),
			Secret:      v.GetString("webhook.secret"),
			MaxAttempts: v.GetInt("webhook.max_attempts"),
			Timeout:     durations["webhook.timeout"],
		},
		Workers: WorkerConfig{
			NotificationIdle:         durations["workers.notification_idle"],
			NotificationErrorBackoff: durations["workers.notification_error_backoff"],
			NotificationStaleAfter:   durations["workers.notification_stale_after"],
			AIIdle:                   durations["workers.ai_idle"],
			AIErrorBackoff:           durations["workers.ai_error_backoff"],
			AIStaleAfter:             durations["workers.ai_stale_after"],
		},
		Sweeper: SweeperConfig{
			Interval:      durations["sweeper.interval"],
			IdleThreshold: durations["sweeper.idle_threshold"],
			WarningWindow: durations["sweeper.warning_window"],
		},
		Attempts: AttemptConfig{
			ViolationLimit:     v.GetInt("attempts.violation_limit"),
			DefaultExpiryHours: v.GetInt("attempts.default_expiry_hours"),
		},
		AI: AIConfig{
			Provider:     strings.ToLower(v.GetString("ai.provider")),
			OpenAIAPIKey: v.GetString("ai.openai_api_key"),
			GeminiAPIKey: v.GetString("ai.gemini_api_key"),
			Model:        v.GetString("ai.model"),
			Timeout:      durations["ai.timeout"],
			MaxQuestions: v.GetInt("ai.max_questions"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: v.GetString("cloudinary.cloud_name"),
			APIKey:    v.GetString("cloudinary.api_key"),
			APISecret: v.GetString("cloudinary.api_secret"),
			Folder:    v.GetString("cloudinary.folder"),
		},
		UploadDir:         v.GetString("uploads.dir"),
		UploadMaxSizeMB:   v.GetInt("uploads.max_mb"),
		RealtimeSubject:   v.GetString("nats.realtime_subject"),
		QueueSignalPrefix: v.GetString("nats.queue_prefix"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.Webhook.MaxAttempts <= 0 {
		cfg.Webhook.MaxAttempts = 3
	}

	if cfg.Attempts.ViolationLimit <= 0 {
		cfg.Attempts.ViolationLimit = 2
	}

	if cfg.Attempts.DefaultExpiryHours <= 0 {
		cfg.Attempts.DefaultExpiryHours = 72
	}

	if cfg.AI.MaxQuestions <= 0 {
		cfg.AI.MaxQuestions = 20
	}

	return cfg, nil
}
