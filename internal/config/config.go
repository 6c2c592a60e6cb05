package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Environment: "dev", "staging" or "production"
	AppEnv string `env:"APP_ENV" envDefault:"production"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Redis (rate limiting, idempotency and the realtime backplane)
	RedisURL string `env:"REDIS_URL,required"`

	// JWT Configuration
	JWTHS256Secret      string `env:"JWT_HS256_SECRET,required"`    // Base64-encoded HMAC secret
	JWTAllowedIssuers   string `env:"JWT_ALLOWED_ISSUERS,required"` // CSV list of allowed issuers (e.g., "tandem-web,tandem-automation")
	JWTAudience         string `env:"JWT_AUDIENCE,required"`        // Expected JWT audience
	JWTClockSkewSeconds int    `env:"JWT_CLOCK_SKEW_SECONDS" envDefault:"60"`
	JWTRS256PublicKey   string `env:"JWT_RS256_PUBLIC_KEY"` // PEM public key for the automation issuer

	// S2S (Service-to-Service) Tokens
	S2STokenWeb        string `env:"S2S_TOKEN_WEB"`
	S2STokenAutomation string `env:"S2S_TOKEN_AUTOMATION"`

	// OpenTelemetry
	OTELEnabled          bool    `env:"OTEL_ENABLED" envDefault:"true"`
	OTELExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"tandem-api"`
	OTELSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`

	// Optional token guarding the Prometheus scrape endpoint. Empty means open.
	MetricsToken string `env:"METRICS_TOKEN"`

	// Server
	Port string `env:"PORT" envDefault:"3002"`

	// Rate Limiting
	RateLimitPerWorkspacePerMin int `env:"RATE_LIMIT_PER_WORKSPACE_PER_MIN" envDefault:"100"`

	// Realtime
	RealtimeChannel    string `env:"REALTIME_CHANNEL" envDefault:"tandem:realtime"` // redis pub/sub channel for the backplane
	RealtimeWSOrigins  string `env:"REALTIME_WS_ORIGINS"`                           // CSV of allowed websocket origins; empty restricts to same-origin
	AuditWebhookURL    string `env:"AUDIT_WEBHOOK_URL"`                             // optional external audit sink
	AuditWebhookSecret string `env:"AUDIT_WEBHOOK_SECRET"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTHS256Secret == "" {
		return fmt.Errorf("JWT_HS256_SECRET is required")
	}

	if len(c.GetAllowedIssuers()) == 0 {
		return fmt.Errorf("JWT_ALLOWED_ISSUERS must contain at least one valid issuer")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWTAudience == "" {
		return fmt.Errorf("JWT_AUDIENCE is required")
	}

	if c.OTELSamplingRatio < 0 || c.OTELSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be between 0 and 1")
	}

	if c.JWTClockSkewSeconds < 0 {
		return fmt.Errorf("JWT_CLOCK_SKEW_SECONDS must be non-negative")
	}

	if c.RateLimitPerWorkspacePerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_WORKSPACE_PER_MIN must be positive")
	}

	if c.RealtimeChannel == "" {
		return fmt.Errorf("REALTIME_CHANNEL must not be empty")
	}

	return nil
}

// TelemetryEnabled reports whether OTLP export should be initialized.
func (c *Config) TelemetryEnabled() bool {
	return c.OTELEnabled && c.OTELExporterEndpoint != ""
}

// GetAllowedIssuers returns the list of allowed JWT issuers
func (c *Config) GetAllowedIssuers() []string {
	return splitCSV(c.JWTAllowedIssuers)
}

// GetWSOrigins returns the list of allowed websocket origin patterns
func (c *Config) GetWSOrigins() []string {
	return splitCSV(c.RealtimeWSOrigins)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
