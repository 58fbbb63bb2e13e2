package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Exporter = "bogus" }, ""},
		{"unknown exporter", func(c *Config) { c.Exporter = "zipkin" }, "exporter must be one of"},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, "service_name"},
		{"logs without otlp", func(c *Config) { c.Logs.Enabled = true }, "logs.enabled"},
		{"otlp logs", func(c *Config) { c.Exporter = ExporterOTLP; c.Logs.Enabled = true }, ""},
		{"zero shutdown", func(c *Config) { c.Shutdown.Timeout = 0 }, "shutdown.timeout"},
		{"otlp bad protocol", func(c *Config) { c.Exporter = ExporterOTLP; c.Protocol = "thrift" }, "protocol must be"},
		{"otlp missing endpoint", func(c *Config) { c.Exporter = ExporterOTLP; c.Endpoint = "" }, "endpoint is required"},
		{"otlp insecure remote", func(c *Config) { c.Exporter = ExporterOTLP; c.Endpoint = "collector.example.com:4317" }, "insecure connections"},
		{"otlp secure remote", func(c *Config) {
			c.Exporter = ExporterOTLP
			c.Endpoint = "collector.example.com:4317"
			c.Insecure = false
		}, ""},
		{"otlp zero metrics interval", func(c *Config) { c.Exporter = ExporterOTLP; c.Metrics.ExportInterval = 0 }, "export_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.0.0.2:4317", true},
		{"[::1]:4317", true},
		{"http://localhost:4318", true},
		{"collector:4317", false},
		{"10.0.0.5:4317", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.want, cfg.isLocalEndpoint())
		})
	}
}
