// Package config provides a standardized way to load, validate, and access application configuration.
// It supports loading configuration from environment variables (optionally primed from a .env file),
// files (JSON/YAML), and explicit overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mcncl/webserver/internal/errors"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

// ServerConfig holds listener and request handling configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	LogLevel        string        `json:"log_level" yaml:"log_level"`
	LogFormat       string        `json:"log_format" yaml:"log_format"`
	Greeting        string        `json:"greeting" yaml:"greeting"`
	MaxRequestSize  int           `json:"max_request_size" yaml:"max_request_size"`
	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SecurityConfig holds rate limiting and response header configuration
type SecurityConfig struct {
	RateLimit       int      `json:"rate_limit" yaml:"rate_limit"`
	RateBurst       int      `json:"rate_burst" yaml:"rate_burst"`
	IPRateLimit     int      `json:"ip_rate_limit" yaml:"ip_rate_limit"`
	SecurityHeaders bool     `json:"security_headers" yaml:"security_headers"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods  []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders  []string `json:"allowed_headers" yaml:"allowed_headers"`
	AllowedIPs      []string `json:"allowed_ips" yaml:"allowed_ips"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	EnableTracing      bool    `json:"enable_tracing" yaml:"enable_tracing"`
	OTLPEndpoint       string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName        string  `json:"service_name" yaml:"service_name"`
	TraceSamplingRatio float64 `json:"trace_sampling_ratio" yaml:"trace_sampling_ratio"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			LogLevel:        "info",
			LogFormat:       "text",
			MaxRequestSize:  1 * 1024 * 1024, // 1 MB
			RequestTimeout:  30 * time.Second,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    35 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			SecurityHeaders: true,
			AllowedOrigins:  []string{"*"},
			AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Content-Type",
				"Content-Length",
				"Accept-Encoding",
				"Authorization",
				"X-Request-ID",
			},
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:       "localhost:4317",
			ServiceName:        "webserver",
			TraceSamplingRatio: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	s := c.Server
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.Host, validation.Required, is.Host),
		validation.Field(&s.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&s.LogLevel, validation.Required, validation.By(func(value interface{}) error {
			level, _ := value.(string)
			switch strings.ToLower(level) {
			case "debug", "info", "warn", "error", "fatal", "trace":
				return nil
			}
			return validation.NewError("validation_invalid_level", "must be one of: debug, info, warn, error, fatal, trace")
		})),
		validation.Field(&s.LogFormat, validation.In("json", "text", "dev")),
		validation.Field(&s.MaxRequestSize, validation.Min(0)),
		validation.Field(&s.RequestTimeout, validation.Min(time.Duration(0))),
		validation.Field(&s.ShutdownTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return errors.NewValidationError("server: " + err.Error())
	}

	sec := c.Security
	if err := validation.ValidateStruct(&sec,
		validation.Field(&sec.RateLimit, validation.Min(0)),
		validation.Field(&sec.RateBurst, validation.Min(0)),
		validation.Field(&sec.IPRateLimit, validation.Min(0)),
	); err != nil {
		return errors.NewValidationError("security: " + err.Error())
	}

	tel := c.Telemetry
	if err := validation.ValidateStruct(&tel,
		validation.Field(&tel.OTLPEndpoint, validation.When(tel.EnableTracing, validation.Required, validation.By(validateHostPort))),
		validation.Field(&tel.ServiceName, validation.When(tel.EnableTracing, validation.Required)),
		validation.Field(&tel.TraceSamplingRatio, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return errors.NewValidationError("telemetry: " + err.Error())
	}

	m := c.Metrics
	if err := validation.ValidateStruct(&m,
		validation.Field(&m.Path, validation.When(m.Enabled, validation.Required, validation.By(func(value interface{}) error {
			path, _ := value.(string)
			if !strings.HasPrefix(path, "/") {
				return validation.NewError("validation_invalid_path", "must start with /")
			}
			return nil
		}))),
	); err != nil {
		return errors.NewValidationError("metrics: " + err.Error())
	}

	return nil
}

// ValidateAddress checks that addr is a host:port pair with a valid host
func ValidateAddress(addr string) error {
	if err := validateHostPort(addr); err != nil {
		return errors.NewValidationError(fmt.Sprintf("address %q: %v", addr, err))
	}
	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return validation.NewError("validation_invalid_port", "port must be a number between 0 and 65535")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrap(err, "failed to load env file "+f)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables on top of the defaults
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// Server config
	if val := os.Getenv("HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return errors.NewValidationError("PORT must be a number")
		}
		cfg.Server.Port = port
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Server.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Server.LogFormat = val
	}
	if val := os.Getenv("GREETING"); val != "" {
		cfg.Server.Greeting = val
	}
	if val := os.Getenv("MAX_REQUEST_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			cfg.Server.MaxRequestSize = size
		}
	}
	for name, dst := range map[string]*time.Duration{
		"REQUEST_TIMEOUT":  &cfg.Server.RequestTimeout,
		"READ_TIMEOUT":     &cfg.Server.ReadTimeout,
		"WRITE_TIMEOUT":    &cfg.Server.WriteTimeout,
		"IDLE_TIMEOUT":     &cfg.Server.IdleTimeout,
		"SHUTDOWN_TIMEOUT": &cfg.Server.ShutdownTimeout,
	} {
		if val := os.Getenv(name); val != "" {
			d, err := parseDuration(val)
			if err != nil {
				return errors.NewValidationError(name + " must be a duration or a number of seconds")
			}
			*dst = d
		}
	}

	// Security config
	if val := os.Getenv("RATE_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil && limit >= 0 {
			cfg.Security.RateLimit = limit
		}
	}
	if val := os.Getenv("RATE_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst >= 0 {
			cfg.Security.RateBurst = burst
		}
	}
	if val := os.Getenv("IP_RATE_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil && limit >= 0 {
			cfg.Security.IPRateLimit = limit
		}
	}
	if val := os.Getenv("SECURITY_HEADERS"); val != "" {
		cfg.Security.SecurityHeaders = parseBool(val)
	}
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		cfg.Security.AllowedOrigins = strings.Split(val, ",")
	}
	if val := os.Getenv("ALLOWED_METHODS"); val != "" {
		cfg.Security.AllowedMethods = strings.Split(val, ",")
	}
	if val := os.Getenv("ALLOWED_HEADERS"); val != "" {
		cfg.Security.AllowedHeaders = strings.Split(val, ",")
	}
	if val := os.Getenv("ALLOWED_IPS"); val != "" {
		cfg.Security.AllowedIPs = strings.Split(val, ",")
	}

	// Telemetry config
	if val := os.Getenv("ENABLE_TRACING"); val != "" {
		cfg.Telemetry.EnableTracing = parseBool(val)
	}
	if val := os.Getenv("OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("SERVICE_NAME"); val != "" {
		cfg.Telemetry.ServiceName = val
	}
	if val := os.Getenv("TRACE_SAMPLING_RATIO"); val != "" {
		if ratio, err := strconv.ParseFloat(val, 64); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.Telemetry.TraceSamplingRatio = ratio
		}
	}

	// Metrics config
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		cfg.Metrics.Enabled = parseBool(val)
	}
	if val := os.Getenv("METRICS_PATH"); val != "" {
		cfg.Metrics.Path = val
	}

	return nil
}

func parseBool(val string) bool {
	return strings.ToLower(val) == "true" || val == "1"
}

// parseDuration accepts a bare number of seconds or a Go duration string
func parseDuration(val string) (time.Duration, error) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(val)
}

// fileConfig mirrors Config with optional fields so that values absent from
// a file leave the defaults alone. Durations are read as strings.
type fileConfig struct {
	Server struct {
		Host            *string `json:"host" yaml:"host"`
		Port            *int    `json:"port" yaml:"port"`
		LogLevel        *string `json:"log_level" yaml:"log_level"`
		LogFormat       *string `json:"log_format" yaml:"log_format"`
		Greeting        *string `json:"greeting" yaml:"greeting"`
		MaxRequestSize  *int    `json:"max_request_size" yaml:"max_request_size"`
		RequestTimeout  *string `json:"request_timeout" yaml:"request_timeout"`
		ReadTimeout     *string `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout    *string `json:"write_timeout" yaml:"write_timeout"`
		IdleTimeout     *string `json:"idle_timeout" yaml:"idle_timeout"`
		ShutdownTimeout *string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `json:"server" yaml:"server"`
	Security struct {
		RateLimit       *int     `json:"rate_limit" yaml:"rate_limit"`
		RateBurst       *int     `json:"rate_burst" yaml:"rate_burst"`
		IPRateLimit     *int     `json:"ip_rate_limit" yaml:"ip_rate_limit"`
		SecurityHeaders *bool    `json:"security_headers" yaml:"security_headers"`
		AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
		AllowedMethods  []string `json:"allowed_methods" yaml:"allowed_methods"`
		AllowedHeaders  []string `json:"allowed_headers" yaml:"allowed_headers"`
		AllowedIPs      []string `json:"allowed_ips" yaml:"allowed_ips"`
	} `json:"security" yaml:"security"`
	Telemetry struct {
		EnableTracing      *bool    `json:"enable_tracing" yaml:"enable_tracing"`
		OTLPEndpoint       *string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
		ServiceName        *string  `json:"service_name" yaml:"service_name"`
		TraceSamplingRatio *float64 `json:"trace_sampling_ratio" yaml:"trace_sampling_ratio"`
	} `json:"telemetry" yaml:"telemetry"`
	Metrics struct {
		Enabled *bool   `json:"enabled" yaml:"enabled"`
		Path    *string `json:"path" yaml:"path"`
	} `json:"metrics" yaml:"metrics"`
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDurationIf(dst *time.Duration, src *string, name string) error {
	if src == nil || *src == "" {
		return nil
	}
	d, err := parseDuration(*src)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("%s: invalid duration %q", name, *src))
	}
	*dst = d
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}

	var fc fileConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return errors.Wrap(err, "failed to parse JSON config file")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return errors.Wrap(err, "failed to parse YAML config file")
		}
	default:
		return errors.NewValidationError("unsupported config file format: " + ext)
	}

	setIf(&cfg.Server.Host, fc.Server.Host)
	setIf(&cfg.Server.Port, fc.Server.Port)
	setIf(&cfg.Server.LogLevel, fc.Server.LogLevel)
	setIf(&cfg.Server.LogFormat, fc.Server.LogFormat)
	setIf(&cfg.Server.Greeting, fc.Server.Greeting)
	setIf(&cfg.Server.MaxRequestSize, fc.Server.MaxRequestSize)

	for _, d := range []struct {
		dst  *time.Duration
		src  *string
		name string
	}{
		{&cfg.Server.RequestTimeout, fc.Server.RequestTimeout, "request_timeout"},
		{&cfg.Server.ReadTimeout, fc.Server.ReadTimeout, "read_timeout"},
		{&cfg.Server.WriteTimeout, fc.Server.WriteTimeout, "write_timeout"},
		{&cfg.Server.IdleTimeout, fc.Server.IdleTimeout, "idle_timeout"},
		{&cfg.Server.ShutdownTimeout, fc.Server.ShutdownTimeout, "shutdown_timeout"},
	} {
		if err := setDurationIf(d.dst, d.src, d.name); err != nil {
			return err
		}
	}

	setIf(&cfg.Security.RateLimit, fc.Security.RateLimit)
	setIf(&cfg.Security.RateBurst, fc.Security.RateBurst)
	setIf(&cfg.Security.IPRateLimit, fc.Security.IPRateLimit)
	setIf(&cfg.Security.SecurityHeaders, fc.Security.SecurityHeaders)
	if len(fc.Security.AllowedOrigins) > 0 {
		cfg.Security.AllowedOrigins = fc.Security.AllowedOrigins
	}
	if len(fc.Security.AllowedMethods) > 0 {
		cfg.Security.AllowedMethods = fc.Security.AllowedMethods
	}
	if len(fc.Security.AllowedHeaders) > 0 {
		cfg.Security.AllowedHeaders = fc.Security.AllowedHeaders
	}
	if len(fc.Security.AllowedIPs) > 0 {
		cfg.Security.AllowedIPs = fc.Security.AllowedIPs
	}

	setIf(&cfg.Telemetry.EnableTracing, fc.Telemetry.EnableTracing)
	setIf(&cfg.Telemetry.OTLPEndpoint, fc.Telemetry.OTLPEndpoint)
	setIf(&cfg.Telemetry.ServiceName, fc.Telemetry.ServiceName)
	setIf(&cfg.Telemetry.TraceSamplingRatio, fc.Telemetry.TraceSamplingRatio)

	setIf(&cfg.Metrics.Enabled, fc.Metrics.Enabled)
	setIf(&cfg.Metrics.Path, fc.Metrics.Path)

	return nil
}

// MergeConfigs merges two configurations, with the second taking precedence
func MergeConfigs(base, override *Config) *Config {
	result := *base

	// Only override non-zero values
	if override == nil {
		return &result
	}

	// Server config
	if override.Server.Host != "" {
		result.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Server.LogLevel != "" {
		result.Server.LogLevel = override.Server.LogLevel
	}
	if override.Server.LogFormat != "" {
		result.Server.LogFormat = override.Server.LogFormat
	}
	if override.Server.Greeting != "" {
		result.Server.Greeting = override.Server.Greeting
	}
	if override.Server.MaxRequestSize != 0 {
		result.Server.MaxRequestSize = override.Server.MaxRequestSize
	}
	if override.Server.RequestTimeout != 0 {
		result.Server.RequestTimeout = override.Server.RequestTimeout
	}
	if override.Server.ReadTimeout != 0 {
		result.Server.ReadTimeout = override.Server.ReadTimeout
	}
	if override.Server.WriteTimeout != 0 {
		result.Server.WriteTimeout = override.Server.WriteTimeout
	}
	if override.Server.IdleTimeout != 0 {
		result.Server.IdleTimeout = override.Server.IdleTimeout
	}
	if override.Server.ShutdownTimeout != 0 {
		result.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	// Security config
	if override.Security.RateLimit != 0 {
		result.Security.RateLimit = override.Security.RateLimit
	}
	if override.Security.RateBurst != 0 {
		result.Security.RateBurst = override.Security.RateBurst
	}
	if override.Security.IPRateLimit != 0 {
		result.Security.IPRateLimit = override.Security.IPRateLimit
	}
	// We need to explicitly check booleans
	if override.Security.SecurityHeaders {
		result.Security.SecurityHeaders = true
	}
	if len(override.Security.AllowedOrigins) > 0 {
		result.Security.AllowedOrigins = override.Security.AllowedOrigins
	}
	if len(override.Security.AllowedMethods) > 0 {
		result.Security.AllowedMethods = override.Security.AllowedMethods
	}
	if len(override.Security.AllowedHeaders) > 0 {
		result.Security.AllowedHeaders = override.Security.AllowedHeaders
	}
	if len(override.Security.AllowedIPs) > 0 {
		result.Security.AllowedIPs = override.Security.AllowedIPs
	}

	// Telemetry config
	if override.Telemetry.EnableTracing {
		result.Telemetry.EnableTracing = true
	}
	if override.Telemetry.OTLPEndpoint != "" {
		result.Telemetry.OTLPEndpoint = override.Telemetry.OTLPEndpoint
	}
	if override.Telemetry.ServiceName != "" {
		result.Telemetry.ServiceName = override.Telemetry.ServiceName
	}
	if override.Telemetry.TraceSamplingRatio != 0 {
		result.Telemetry.TraceSamplingRatio = override.Telemetry.TraceSamplingRatio
	}

	// Metrics config
	if override.Metrics.Enabled {
		result.Metrics.Enabled = true
	}
	if override.Metrics.Path != "" {
		result.Metrics.Path = override.Metrics.Path
	}

	return &result
}

// Load loads the configuration from multiple sources with the following precedence:
// 1. Override (highest precedence)
// 2. Environment variables
// 3. Config file
// 4. Default values (lowest precedence)
func Load(configFile string, override *Config) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if err := applyFile(cfg, configFile); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if override != nil {
		cfg = MergeConfigs(cfg, override)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// String returns a JSON representation of the configuration
func (c *Config) String() string {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error marshaling config: %v", err)
	}

	return string(bytes)
}
