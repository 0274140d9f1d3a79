package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airglance/airglance/internal/config"
)

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv(envFrom(map[string]string{
		"WAQI_TOKEN":  "waqi-token",
		"OWM_API_KEY": "owm-key",
	}))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "https://api.waqi.info", cfg.Providers.WAQIBaseURL)
	assert.Equal(t, "https://api.openweathermap.org/data/2.5", cfg.Providers.OWMBaseURL)
	assert.Equal(t, 10*time.Second, cfg.Providers.Timeout)
	assert.False(t, cfg.RequireTLS)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRatio, 1e-9)
	assert.Equal(t, 15*time.Minute, cfg.Probe.Interval)
	assert.Equal(t, []string{"Delhi", "Mumbai", "Bangalore"}, cfg.Probe.Cities)
	assert.False(t, cfg.Probe.PubSubEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := config.FromEnv(envFrom(map[string]string{
		"WAQI_TOKEN":           "t",
		"OWM_API_KEY":          "k",
		"APP_ENV":              "production",
		"APP_PORT":             "9090",
		"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example",
		"PROVIDER_TIMEOUT":     "3s",
		"OTEL_ENABLED":         "true",
		"REQUIRE_TLS":          "1",
		"PROBE_INTERVAL":       "1h",
		"PROBE_CITIES":         " Paris ,, Lyon ",
		"PUBSUB_PROJECT_ID":    "proj",
		"PUBSUB_SUBSCRIPTION":  "sub",
	}))
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Providers.Timeout)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.True(t, cfg.RequireTLS)
	assert.Equal(t, time.Hour, cfg.Probe.Interval)
	assert.Equal(t, []string{"Paris", "Lyon"}, cfg.Probe.Cities)
	assert.True(t, cfg.Probe.PubSubEnabled())
}

func TestFromEnv_MissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		missing []string
	}{
		{"both missing", map[string]string{}, []string{"WAQI_TOKEN", "OWM_API_KEY"}},
		{"waqi missing", map[string]string{"OWM_API_KEY": "k"}, []string{"WAQI_TOKEN"}},
		{"owm missing", map[string]string{"WAQI_TOKEN": "t"}, []string{"OWM_API_KEY"}},
		{"blank values", map[string]string{"WAQI_TOKEN": "  ", "OWM_API_KEY": "k"}, []string{"WAQI_TOKEN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromEnv(envFrom(tt.env))
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfigMissing)
			for _, name := range tt.missing {
				assert.Contains(t, err.Error(), name)
			}
		})
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{"WAQI_TOKEN": "t", "OWM_API_KEY": "k"}
	}

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad timeout", "PROVIDER_TIMEOUT", "soon"},
		{"negative timeout", "PROVIDER_TIMEOUT", "-1s"},
		{"bad interval", "PROBE_INTERVAL", "often"},
		{"bad bool", "OTEL_ENABLED", "maybe"},
		{"bad tls flag", "REQUIRE_TLS", "sometimes"},
		{"bad sample ratio", "OTEL_SAMPLE_RATIO", "half"},
		{"sample ratio above one", "OTEL_SAMPLE_RATIO", "2"},
		{"bad port", "APP_PORT", "http"},
		{"bad base url", "WAQI_BASE_URL", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := base()
			env[tt.key] = tt.val
			_, err := config.FromEnv(envFrom(env))
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfigInvalid)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
