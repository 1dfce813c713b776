package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	CORS    CORSConfig
	HTTP    HTTPConfig
	Logging LogConfig
}

// CORSConfig holds the rewrite layer configuration.
type CORSConfig struct {
	PageOrigin       string        `envconfig:"CORS_PAGE_ORIGIN" default:"http://localhost:8000"`
	ProxyURL         string        `envconfig:"CORS_PROXY_URL" default:"https://cors.climet.eu/"`
	ProbeMethods     []string      `envconfig:"CORS_PROBE_METHODS" default:"HEAD,GET"`
	CheckAllowOrigin bool          `envconfig:"CORS_CHECK_ALLOW_ORIGIN" default:"true"`
	ProbeTimeout     time.Duration `envconfig:"CORS_PROBE_TIMEOUT" default:"0s"`
	Warnings         bool          `envconfig:"CORS_WARNINGS" default:"true"`
}

// HTTPConfig holds downstream client configuration.
type HTTPConfig struct {
	Timeout          time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	RetryCount       int           `envconfig:"HTTP_RETRY_COUNT" default:"3"`
	RateLimitRPS     float64       `envconfig:"HTTP_RATE_LIMIT_RPS" default:"0"`
	UserAgent        string        `envconfig:"HTTP_USER_AGENT" default:"corsbridge/1.0"`
	BreakerThreshold uint32        `envconfig:"HTTP_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"HTTP_BREAKER_COOLDOWN" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		CORS: CORSConfig{
			PageOrigin:       "http://localhost:8000",
			ProxyURL:         "https://cors.climet.eu/",
			ProbeMethods:     []string{"HEAD", "GET"},
			CheckAllowOrigin: true,
			Warnings:         true,
		},
		HTTP: HTTPConfig{
			Timeout:          30 * time.Second,
			RetryCount:       3,
			UserAgent:        "corsbridge/1.0",
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	var errs []error
	if err := absoluteURL("CORS_PAGE_ORIGIN", c.CORS.PageOrigin); err != nil {
		errs = append(errs, err)
	}
	if err := absoluteURL("CORS_PROXY_URL", c.CORS.ProxyURL); err != nil {
		errs = append(errs, err)
	}
	if len(c.CORS.ProbeMethods) == 0 {
		errs = append(errs, errors.New("CORS_PROBE_METHODS must name at least one method"))
	}
	if c.CORS.ProbeTimeout < 0 {
		errs = append(errs, errors.New("CORS_PROBE_TIMEOUT cannot be negative"))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT cannot be negative"))
	}
	if c.HTTP.RetryCount < 0 || c.HTTP.RetryCount > 10 {
		errs = append(errs, errors.New("HTTP_RETRY_COUNT must be between 0 and 10"))
	}
	if c.HTTP.BreakerThreshold == 0 {
		errs = append(errs, errors.New("HTTP_BREAKER_THRESHOLD must be positive"))
	}
	if c.HTTP.BreakerCooldown < 0 {
		errs = append(errs, errors.New("HTTP_BREAKER_COOLDOWN cannot be negative"))
	}
	if c.HTTP.RateLimitRPS < 0 {
		errs = append(errs, errors.New("HTTP_RATE_LIMIT_RPS cannot be negative"))
	}
	return errors.Join(errs...)
}

func absoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
