// Package config loads wasmobs configuration.
//
// Values come from defaults, then an optional YAML file, then WASMOBS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
	"github.com/fyrsmithlabs/wasmobs/internal/natsink"
	"github.com/fyrsmithlabs/wasmobs/internal/telemetry"
)

// Span backends.
const (
	BackendOTel = "otel"
	BackendNATS = "nats"
)

// Config holds the complete wasmobs configuration.
type Config struct {
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Exporter  ExporterConfig   `koanf:"exporter"`
	NATS      NATSConfig       `koanf:"nats"`
	Server    ServerConfig     `koanf:"server"`
	Runtime   RuntimeConfig    `koanf:"runtime"`
}

// ExporterConfig controls the span exporter task.
type ExporterConfig struct {
	Backend         string   `koanf:"backend"` // otel, nats
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	QueueCapacity   int      `koanf:"queue_capacity"` // 0 = unbounded
}

// NATSConfig holds the NATS span sink settings.
type NATSConfig struct {
	URL           string   `koanf:"url"`
	SubjectPrefix string   `koanf:"subject_prefix"`
	Token         Secret   `koanf:"token"`
	ConnectWait   Duration `koanf:"connect_wait"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// RuntimeConfig controls the wasm runtime.
type RuntimeConfig struct {
	WASI bool `koanf:"wasi"` // instantiate wasi_snapshot_preview1 before the module
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
		Exporter: ExporterConfig{
			Backend:         BackendOTel,
			ShutdownTimeout: Duration(exporter.DefaultShutdownTimeout),
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: natsink.DefaultSubjectPrefix,
			ConnectWait:   Duration(2 * time.Second),
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9464,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Runtime: RuntimeConfig{
			WASI: true,
		},
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	switch c.Exporter.Backend {
	case BackendOTel:
		if !c.Telemetry.Enabled {
			errs = append(errs, errors.New("exporter: backend otel requires telemetry.enabled"))
		}
	case BackendNATS:
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats: url is required when exporter.backend is nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("exporter: backend must be %q or %q, got %q", BackendOTel, BackendNATS, c.Exporter.Backend))
	}
	if c.Logging.Output.OTEL && !c.otelLogsAvailable() {
		errs = append(errs, errors.New("logging: output.otel requires telemetry.enabled, the otlp exporter and telemetry.logs.enabled"))
	}
	if c.Exporter.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("exporter: shutdown_timeout must be positive"))
	}
	if c.Exporter.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("exporter: queue_capacity must be >= 0, got %d", c.Exporter.QueueCapacity))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server: port out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

func (c *Config) otelLogsAvailable() bool {
	t := c.Telemetry
	return t.Enabled && t.Exporter == telemetry.ExporterOTLP && t.Logs.Enabled
}

// NATSSink converts the NATS section into sink settings.
func (c *Config) NATSSink() natsink.Config {
	return natsink.Config{
		URL:           c.NATS.URL,
		SubjectPrefix: c.NATS.SubjectPrefix,
		Token:         c.NATS.Token.Value(),
		ConnectWait:   c.NATS.ConnectWait.Duration(),
	}
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
