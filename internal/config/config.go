// Package config assembles process configuration from the environment once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrConfigMissing is returned when a required setting is absent.
var ErrConfigMissing = errors.New("required configuration missing")

// ErrConfigInvalid is returned when a setting is present but malformed.
var ErrConfigInvalid = errors.New("invalid configuration")

var validate = validator.New()

// Providers holds upstream credentials and endpoints.
type Providers struct {
	WAQIToken   string `validate:"required"`
	WAQIBaseURL string `validate:"required,url"`
	OWMAPIKey   string `validate:"required"`
	OWMBaseURL  string `validate:"required,url"`

	// Timeout bounds each outbound request.
	Timeout time.Duration `validate:"gt=0"`
}

// Telemetry holds OpenTelemetry settings.
type Telemetry struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64 `validate:"gte=0,lte=1"`
}

// Probe holds settings for the provider probe worker.
type Probe struct {
	Interval time.Duration `validate:"gt=0"`
	Cities   []string      `validate:"min=1,dive,required"`

	// PubSubProjectID and PubSubSubscription enable the on-demand trigger when both are set.
	PubSubProjectID    string
	PubSubSubscription string
}

// Config is the immutable process configuration.
type Config struct {
	Env                string `validate:"required"`
	Port               string `validate:"required,numeric"`
	CORSAllowedOrigins []string

	// RequireTLS rejects plain-HTTP requests that did not arrive through a TLS proxy.
	RequireTLS bool

	Providers Providers
	Telemetry Telemetry
	Probe     Probe
}

// Load reads a .env file if present, then the environment, and validates the result.
// Missing credentials yield an error wrapping ErrConfigMissing.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	timeout, err := parseDuration("PROVIDER_TIMEOUT", get("PROVIDER_TIMEOUT", "10s"))
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration("PROBE_INTERVAL", get("PROBE_INTERVAL", "15m"))
	if err != nil {
		return nil, err
	}
	otelEnabled, err := parseBool("OTEL_ENABLED", get("OTEL_ENABLED", "false"))
	if err != nil {
		return nil, err
	}
	sampleRatio, err := parseFloat("OTEL_SAMPLE_RATIO", get("OTEL_SAMPLE_RATIO", "1"))
	if err != nil {
		return nil, err
	}
	requireTLS, err := parseBool("REQUIRE_TLS", get("REQUIRE_TLS", "false"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                get("APP_ENV", "development"),
		Port:               get("APP_PORT", "8080"),
		CORSAllowedOrigins: splitList(get("CORS_ALLOWED_ORIGINS", "*")),
		RequireTLS:         requireTLS,
		Providers: Providers{
			WAQIToken:   get("WAQI_TOKEN", ""),
			WAQIBaseURL: get("WAQI_BASE_URL", "https://api.waqi.info"),
			OWMAPIKey:   get("OWM_API_KEY", ""),
			OWMBaseURL:  get("OWM_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			Timeout:     timeout,
		},
		Telemetry: Telemetry{
			Enabled:      otelEnabled,
			OTLPEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  sampleRatio,
		},
		Probe: Probe{
			Interval:           interval,
			Cities:             splitList(get("PROBE_CITIES", "Delhi,Mumbai,Bangalore")),
			PubSubProjectID:    get("PUBSUB_PROJECT_ID", ""),
			PubSubSubscription: get("PUBSUB_SUBSCRIPTION", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envNames maps struct fields to the variables that populate them, for error messages.
var envNames = map[string]string{
	"Config.Env":                   "APP_ENV",
	"Config.Port":                  "APP_PORT",
	"Config.Providers.WAQIToken":   "WAQI_TOKEN",
	"Config.Providers.WAQIBaseURL": "WAQI_BASE_URL",
	"Config.Providers.OWMAPIKey":   "OWM_API_KEY",
	"Config.Providers.OWMBaseURL":  "OWM_BASE_URL",
	"Config.Providers.Timeout":     "PROVIDER_TIMEOUT",
	"Config.Telemetry.SampleRatio": "OTEL_SAMPLE_RATIO",
	"Config.Probe.Interval":        "PROBE_INTERVAL",
	"Config.Probe.Cities":          "PROBE_CITIES",
}

// Validate checks the configuration. Absent required values wrap ErrConfigMissing;
// any other violation wraps ErrConfigInvalid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		name := envName(fe.Namespace())
		if fe.Tag() == "required" {
			missing = append(missing, name)
		} else {
			invalid = append(invalid, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(invalid, ", "))
}

// PubSubEnabled reports whether the on-demand probe trigger is configured.
func (p Probe) PubSubEnabled() bool {
	return p.PubSubProjectID != "" && p.PubSubSubscription != ""
}

func envName(namespace string) string {
	if name, ok := envNames[namespace]; ok {
		return name
	}
	// Dive errors carry an index suffix, e.g. Config.Probe.Cities[1].
	if i := strings.IndexByte(namespace, '['); i > 0 {
		if name, ok := envNames[namespace[:i]]; ok {
			return name
		}
	}
	return namespace
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, key, err)
	}
	return d, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, key, err)
	}
	return b, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, key, err)
	}
	return f, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
