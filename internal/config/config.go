package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Placeholder Khalti sandbox credentials used outside production when no
// real keys are configured. Deliberately recognisable so they can never be
// mistaken for live credentials in a log line.
const (
	PlaceholderPublicKey = "test_public_key_stagehub_local_dev"
	PlaceholderSecretKey = "test_secret_key_stagehub_local_dev"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	KhaltiPublicKey  string
	KhaltiSecretKey  string
	KhaltiGatewayURL string
	KhaltiReturnURL  string
	KhaltiWebsiteURL string
	// KhaltiPlaceholder is true when the lenient non-production fallback
	// filled the keys; startup logs a warning so the path stays visible.
	KhaltiPlaceholder bool

	OutboundTimeout  time.Duration
	IntentTTL        time.Duration
	WebhookReplayTTL time.Duration
	PollInterval     time.Duration
	PollMaxAttempts  int
	RateLimitPerMin  int
}

// Load reads configuration from environment variables and optional .env
// files. Khalti key resolution is lenient outside production (placeholder
// test credentials) and strict in production, where a missing key aborts
// startup before any network call.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		KhaltiPublicKey:    strings.TrimSpace(k.String("KHALTI_PUBLIC_KEY")),
		KhaltiSecretKey:    strings.TrimSpace(k.String("KHALTI_SECRET_KEY")),
		KhaltiGatewayURL:   strings.TrimSpace(k.String("KHALTI_GATEWAY_URL")),
		KhaltiReturnURL:    strings.TrimSpace(k.String("KHALTI_RETURN_URL")),
		KhaltiWebsiteURL:   strings.TrimSpace(k.String("KHALTI_WEBSITE_URL")),
		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "30s"),
		IntentTTL:          parseDuration(k.String("PAYMENT_INTENT_TTL"), "30m"),
		WebhookReplayTTL:   parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		PollInterval:       parseDuration(k.String("PAYMENT_POLL_INTERVAL"), "30s"),
		PollMaxAttempts:    parseInt(k.String("PAYMENT_POLL_MAX_ATTEMPTS"), 60),
		RateLimitPerMin:    parseInt(k.String("RATE_LIMIT_PER_MIN"), 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if err := cfg.resolveKhalti(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the deployment mode is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

func (c *Config) resolveKhalti() error {
	if c.IsProduction() {
		if c.KhaltiSecretKey == "" {
			return errors.New("KHALTI_SECRET_KEY is required in production")
		}
		if c.KhaltiPublicKey == "" {
			return errors.New("KHALTI_PUBLIC_KEY is required in production")
		}
		return nil
	}
	if c.KhaltiSecretKey == "" {
		c.KhaltiSecretKey = PlaceholderSecretKey
		c.KhaltiPlaceholder = true
	}
	if c.KhaltiPublicKey == "" {
		c.KhaltiPublicKey = PlaceholderPublicKey
		c.KhaltiPlaceholder = true
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(trimmed, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

// MustLoad behaves like Load but panics on error. Useful for tests and
// command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without
// touching the real environment permanently.
func LoadForTests(envVars map[string]string) (*Config, error) {
	original := make(map[string]string, len(envVars))
	for key := range envVars {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, envVars[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
