package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ExecutionModeProduction is the NODE_ENV value that closes the mock-auth gate.
const ExecutionModeProduction = "production"

// Config holds the gateway configuration. It is loaded once at process start
// and never mutated afterwards; request handlers share it without locking.
type Config struct {
	// Server bind address (host:port)
	ServerAddr string `mapstructure:"server_addr" validate:"required"`

	// Enable development logging
	Debug bool `mapstructure:"debug"`

	// ExecutionMode mirrors NODE_ENV. Anything other than "production"
	// is treated as a non-production deployment.
	ExecutionMode string `mapstructure:"execution_mode" validate:"required"`

	// MockAuthEnabled is the second factor of the mock-auth gate.
	MockAuthEnabled bool `mapstructure:"mock_auth_enabled"`

	// Base URL of the primary application API
	MarkAPIEndpoint string `mapstructure:"mark_api_endpoint" validate:"required,url,startswith=http"`

	// Base URL of the LTI credential manager
	LTICredentialManagerEndpoint string `mapstructure:"lti_credential_manager_endpoint" validate:"required,url,startswith=http"`

	// Optional YAML file overriding the built-in route groups
	RoutesFile string `mapstructure:"routes_file" validate:"omitempty,file"`

	Auth          AuthConfig          `mapstructure:"auth"`
	Forward       ForwardConfig       `mapstructure:"forward"`
	Info          InfoConfig          `mapstructure:"info"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AuthConfig configures the real identity strategies.
type AuthConfig struct {
	// JWTSecret verifies HMAC-signed tokens (HS256/HS384/HS512).
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWKSFile points at a JSON Web Key Set used for asymmetric tokens.
	JWKSFile string `mapstructure:"jwks_file" validate:"omitempty,file"`

	// CookieName is the cookie carrying the signed token on cookie-auth routes.
	CookieName string `mapstructure:"cookie_name" validate:"required"`

	// Leeway tolerates clock skew when checking exp/nbf.
	Leeway time.Duration `mapstructure:"leeway" validate:"gte=0"`
}

// ForwardConfig tunes the outbound HTTP client shared by all requests.
type ForwardConfig struct {
	Timeout             time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" validate:"gt=0"`
	MaxResponseBytes    int64         `mapstructure:"max_response_bytes" validate:"gt=0"`
}

// InfoConfig configures the local liveness/version endpoint.
type InfoConfig struct {
	Path    string `mapstructure:"path" validate:"required,startswith=/"`
	Version int    `mapstructure:"version"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required,startswith=/"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
// Tracing is disabled when OTLPEndpoint is empty.
type ObservabilityConfig struct {
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
}

// IsProduction reports whether the execution mode is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.ExecutionMode), ExecutionModeProduction)
}

// envBindings maps viper keys to the environment variables deployments
// already use. NODE_ENV and the *_ENDPOINT names are shared with the
// downstream services, so they are bound verbatim rather than prefixed.
var envBindings = map[string]string{
	"server_addr":                     "SERVER_ADDR",
	"debug":                           "DEBUG",
	"execution_mode":                  "NODE_ENV",
	"mock_auth_enabled":               "MOCK_AUTH_ENABLED",
	"mark_api_endpoint":               "MARK_API_ENDPOINT",
	"lti_credential_manager_endpoint": "LTI_CREDENTIAL_MANAGER_ENDPOINT",
	"routes_file":                     "ROUTES_FILE",
	"auth.jwt_secret":                 "JWT_SECRET",
	"auth.jwks_file":                  "JWT_JWKS_FILE",
	"auth.cookie_name":                "AUTH_COOKIE_NAME",
	"auth.leeway":                     "AUTH_CLOCK_LEEWAY",
	"forward.timeout":                 "FORWARD_TIMEOUT",
	"forward.max_idle_conns_per_host": "FORWARD_MAX_IDLE_CONNS_PER_HOST",
	"forward.max_response_bytes":      "FORWARD_MAX_RESPONSE_BYTES",
	"info.path":                       "INFO_PATH",
	"info.version":                    "INFO_VERSION",
	"metrics.enabled":                 "METRICS_ENABLED",
	"metrics.path":                    "METRICS_PATH",
	"observability.otlp_endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"observability.otlp_insecure":     "OTEL_EXPORTER_OTLP_INSECURE",
	"observability.service_name":      "OTEL_SERVICE_NAME",
	"observability.service_version":   "OTEL_SERVICE_VERSION",
	"observability.environment":       "OTEL_DEPLOYMENT_ENVIRONMENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("debug", false)
	v.SetDefault("execution_mode", ExecutionModeProduction)
	v.SetDefault("mock_auth_enabled", false)
	v.SetDefault("auth.cookie_name", "authentication")
	v.SetDefault("auth.leeway", "0s")
	v.SetDefault("forward.timeout", "30s")
	v.SetDefault("forward.max_idle_conns_per_host", 32)
	v.SetDefault("forward.max_response_bytes", 50<<20)
	v.SetDefault("info.path", "/v1/info")
	v.SetDefault("info.version", 1)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("observability.service_name", "markgw")
	v.SetDefault("observability.service_version", "dev")
}

// Load reads configuration from the global viper instance: defaults,
// then an optional config file (already set by the caller), then the
// environment, then any bound flags.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from the given viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads configuration without validating it. Commands that need
// only a subset of the settings (e.g. token minting) use it directly.
func Decode(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the cross-field rules viper
// cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Real authentication needs key material. Only a deployment whose mock
	// gate is open may run without it.
	mockGateOpen := !cfg.IsProduction() && cfg.MockAuthEnabled
	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWKSFile == "" && !mockGateOpen {
		return fmt.Errorf("invalid configuration: JWT_SECRET or JWT_JWKS_FILE is required")
	}

	return nil
}
