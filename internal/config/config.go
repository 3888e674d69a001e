// Package config provides configuration loading for escrowd.
//
// Values come from hardcoded defaults, then an optional YAML file, then
// ESCROWD_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete escrowd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	RateLimit     RateLimitConfig     `koanf:"ratelimit"`
	NATS          NATSConfig          `koanf:"nats"`
	Ledger        LedgerConfig        `koanf:"ledger"`
	Limits        LimitsConfig        `koanf:"limits"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// CallerHeader carries the authenticated caller identity.
	CallerHeader string `koanf:"caller_header"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimitConfig bounds per-client request rate on the API.
type RateLimitConfig struct {
	Enabled           bool     `koanf:"enabled"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
	ExpiresIn         Duration `koanf:"expires_in"`
}

// NATSConfig controls event publication.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// Embedded starts an in-process NATS server and ignores URL.
	Embedded      bool   `koanf:"embedded"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Token         Secret `koanf:"token"`
}

// LedgerConfig configures the in-memory ledger.
type LedgerConfig struct {
	// GenesisPath points at a TOML file of opening balances. Optional.
	GenesisPath string `koanf:"genesis_path"`
}

// LimitsConfig bounds task inputs.
type LimitsConfig struct {
	MaxNameLength int `koanf:"max_name_length"`
	MaxRecipients int `koanf:"max_recipients"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8480,
			ShutdownTimeout: Duration(10 * time.Second),
			CallerHeader:    "X-Caller-Identity",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
			ExpiresIn:         Duration(3 * time.Minute),
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "tasks",
		},
		Limits: LimitsConfig{
			MaxNameLength: 50,
			MaxRecipients: 100,
		},
		Observability: ObservabilityConfig{
			ServiceName:  "escrowd",
			OTLPEndpoint: "localhost:4317",
			OTLPProtocol: "grpc",
			OTLPInsecure: true,
			SamplingRate: 1.0,
			LogLevel:     "info",
			LogFormat:    "json",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.CallerHeader == "" {
		errs = append(errs, errors.New("server.caller_header is required"))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("ratelimit.requests_per_second must be positive"))
		}
		if c.RateLimit.Burst < 0 {
			errs = append(errs, errors.New("ratelimit.burst must not be negative"))
		}
	}

	if c.NATS.Enabled && !c.NATS.Embedded && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required unless nats.embedded is set"))
	}
	if c.NATS.Enabled && c.NATS.SubjectPrefix == "" {
		errs = append(errs, errors.New("nats.subject_prefix is required"))
	}

	if c.Limits.MaxNameLength <= 0 {
		errs = append(errs, errors.New("limits.max_name_length must be positive"))
	}
	if c.Limits.MaxRecipients <= 0 {
		errs = append(errs, errors.New("limits.max_recipients must be positive"))
	}

	if c.Observability.ServiceName == "" {
		errs = append(errs, errors.New("observability.service_name is required"))
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		errs = append(errs, errors.New("observability.sampling_rate must be between 0 and 1"))
	}
	switch c.Observability.OTLPProtocol {
	case "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("observability.otlp_protocol must be grpc or http/protobuf, got %q", c.Observability.OTLPProtocol))
	}

	return errors.Join(errs...)
}
