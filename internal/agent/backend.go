package agent

import (
	"fmt"

	"github.com/fyrsmithlabs/wasmobs/internal/config"
	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
	"github.com/fyrsmithlabs/wasmobs/internal/natsink"
	"github.com/fyrsmithlabs/wasmobs/internal/telemetry"
)

// BackendFactory returns the factory for the backend selected in cfg.
func BackendFactory(cfg *config.Config, logger *logging.Logger, opts ...telemetry.Option) (exporter.BackendFactory, error) {
	switch cfg.Exporter.Backend {
	case config.BackendOTel:
		return telemetry.NewBackendFactory(&cfg.Telemetry, opts...), nil
	case config.BackendNATS:
		return natsink.NewBackendFactory(cfg.NATSSink(), logger.Named("natsink").Underlying()), nil
	default:
		return nil, fmt.Errorf("unknown exporter backend %q", cfg.Exporter.Backend)
	}
}
