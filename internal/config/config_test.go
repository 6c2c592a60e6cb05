package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_GetAllowedIssuers_SingleIssuer(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "tandem-web",
	}

	issuers := cfg.GetAllowedIssuers()

	assert.Len(t, issuers, 1)
	assert.Equal(t, "tandem-web", issuers[0])
}

func TestConfig_GetAllowedIssuers_MultipleIssuers(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "tandem-web,tandem-admin,tandem-automation",
	}

	issuers := cfg.GetAllowedIssuers()

	assert.Len(t, issuers, 3)
	assert.Equal(t, "tandem-web", issuers[0])
	assert.Equal(t, "tandem-admin", issuers[1])
	assert.Equal(t, "tandem-automation", issuers[2])
}

func TestConfig_GetAllowedIssuers_WithWhitespace(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "  tandem-web  , tandem-admin , tandem-automation  ",
	}

	issuers := cfg.GetAllowedIssuers()

	assert.Len(t, issuers, 3)
	assert.Equal(t, "tandem-web", issuers[0])
	assert.Equal(t, "tandem-admin", issuers[1])
	assert.Equal(t, "tandem-automation", issuers[2])
}

func TestConfig_GetAllowedIssuers_WithEmptyEntries(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "tandem-web,,tandem-admin,  ,tandem-automation",
	}

	issuers := cfg.GetAllowedIssuers()

	// Empty entries should be ignored
	assert.Len(t, issuers, 3)
	assert.Equal(t, "tandem-web", issuers[0])
	assert.Equal(t, "tandem-admin", issuers[1])
	assert.Equal(t, "tandem-automation", issuers[2])
}

func TestConfig_GetAllowedIssuers_EmptyString(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "",
	}

	issuers := cfg.GetAllowedIssuers()

	assert.Len(t, issuers, 0)
}

func TestConfig_GetAllowedIssuers_OnlyWhitespace(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "   ,  ,   ",
	}

	issuers := cfg.GetAllowedIssuers()

	// All whitespace entries should be ignored
	assert.Len(t, issuers, 0)
}

func TestConfig_GetAllowedIssuers_TrailingComma(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "tandem-web,tandem-admin,",
	}

	issuers := cfg.GetAllowedIssuers()

	// Trailing comma should be ignored
	assert.Len(t, issuers, 2)
	assert.Equal(t, "tandem-web", issuers[0])
	assert.Equal(t, "tandem-admin", issuers[1])
}

func TestConfig_GetAllowedIssuers_LeadingComma(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: ",tandem-web,tandem-admin",
	}

	issuers := cfg.GetAllowedIssuers()

	// Leading comma should be ignored
	assert.Len(t, issuers, 2)
	assert.Equal(t, "tandem-web", issuers[0])
	assert.Equal(t, "tandem-admin", issuers[1])
}

func TestConfig_GetWSOrigins(t *testing.T) {
	cfg := &Config{
		RealtimeWSOrigins: "https://app.tandem.dev, https://*.tandem.app ,",
	}

	origins := cfg.GetWSOrigins()

	assert.Len(t, origins, 2)
	assert.Equal(t, "https://app.tandem.dev", origins[0])
	assert.Equal(t, "https://*.tandem.app", origins[1])
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabaseURL:                 "postgres://localhost/tandem",
			RedisURL:                    "redis://localhost:6379",
			JWTHS256Secret:              "c2VjcmV0",
			JWTAllowedIssuers:           "tandem-web",
			JWTAudience:                 "tandem-api",
			OTELSamplingRatio:           0.1,
			RateLimitPerWorkspacePerMin: 100,
			RealtimeChannel:             "tandem:realtime",
		}
	}

	t.Run("ValidConfig", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("MissingIssuers", func(t *testing.T) {
		cfg := valid()
		cfg.JWTAllowedIssuers = " , "
		assert.Error(t, cfg.Validate())
	})

	t.Run("SamplingRatioOutOfRange", func(t *testing.T) {
		cfg := valid()
		cfg.OTELSamplingRatio = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("EmptyRealtimeChannel", func(t *testing.T) {
		cfg := valid()
		cfg.RealtimeChannel = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_TelemetryEnabled(t *testing.T) {
	cfg := &Config{OTELEnabled: true, OTELExporterEndpoint: "localhost:4317"}
	assert.True(t, cfg.TelemetryEnabled())

	cfg.OTELExporterEndpoint = ""
	assert.False(t, cfg.TelemetryEnabled())

	cfg = &Config{OTELEnabled: false, OTELExporterEndpoint: "localhost:4317"}
	assert.False(t, cfg.TelemetryEnabled())
}

func TestConfig_GetAllowedIssuers_DuplicateIssuers(t *testing.T) {
	cfg := &Config{
		JWTAllowedIssuers: "tandem-web,tandem-admin,tandem-web",
	}

	issuers := cfg.GetAllowedIssuers()

	// Duplicates are allowed (deduplication happens at resolver level)
	assert.Len(t, issuers, 3)
	assert.Equal(t, "tandem-web", issuers[0])
	assert.Equal(t, "tandem-admin", issuers[1])
	assert.Equal(t, "tandem-web", issuers[2])
}
