// Package config loads txbatch settings from TXBATCH_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/gabapcia/txbatch/internal/pkg/validator"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "TXBATCH"

// Config is the full runtime configuration.
type Config struct {
	LogLevel    string            `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Processor   ProcessorConfig   `envconfig:"PROCESSOR"`
	Telemetry   TelemetryConfig   `envconfig:"TELEMETRY"`
	Redis       RedisConfig       `envconfig:"REDIS"`
	RemoteCheck RemoteCheckConfig `envconfig:"REMOTE_CHECK"`
}

// ProcessorConfig tunes the batch processor.
type ProcessorConfig struct {
	ThroughputGoal float64       `envconfig:"THROUGHPUT_GOAL" default:"100000" validate:"gte=0"`
	DrainInterval  time.Duration `envconfig:"DRAIN_INTERVAL" default:"2s" validate:"gt=0"`
	FlushThreshold int           `envconfig:"FLUSH_THRESHOLD" default:"0" validate:"gte=0"`
}

// TelemetryConfig controls OTLP export. Exporter endpoints come from the
// standard OTEL_EXPORTER_OTLP_* variables.
type TelemetryConfig struct {
	Enabled     bool   `envconfig:"ENABLED" default:"false"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"txbatch" validate:"required"`
}

// RedisConfig configures the batch stream sink. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR" validate:"omitempty,hostname_port"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"gte=0"`
	Stream   string `envconfig:"STREAM" default:"txbatch:batches" validate:"required"`
	MaxLen   int64  `envconfig:"MAX_LEN" default:"0" validate:"gte=0"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// RemoteCheckConfig configures the remote batch predicate. An empty URL
// disables it.
type RemoteCheckConfig struct {
	URL      string        `envconfig:"URL" validate:"omitempty,url"`
	Method   string        `envconfig:"METHOD" default:"txbatch_checkBatch" validate:"required"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"gt=0"`
	RetryMax int           `envconfig:"RETRY_MAX" default:"2" validate:"gte=0"`
}

// Enabled reports whether a remote check URL is configured.
func (c RemoteCheckConfig) Enabled() bool {
	return c.URL != ""
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
