// Wasmobs runs WebAssembly modules with every exported function call traced.
//
// Usage:
//
//	# Call one export and print its results
//	wasmobs run module.wasm add 5 3
//
//	# Serve a module over HTTP with /health, /metrics and /v1/functions
//	wasmobs serve module.wasm
//
//	# Run the built-in example module
//	wasmobs demo
//
// Configuration is read from ~/.config/wasmobs/config.yaml (or --config) and
// WASMOBS_* environment variables. See internal/config for details.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/agent"
	"github.com/fyrsmithlabs/wasmobs/internal/config"
	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
	"github.com/fyrsmithlabs/wasmobs/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "Received signal %v, shutting down gracefully...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wasmobs",
		Short: "Trace every exported call of a WebAssembly module",
		Long: `wasmobs runs WebAssembly modules on wazero with each exported function
wrapped so that every call becomes a span, exported asynchronously to
OpenTelemetry or NATS.`,
		Version:       version,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/wasmobs/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDemoCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wasmobs by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// environment is what every command needs before touching a module.
type environment struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

// load reads configuration and builds telemetry, then the logger on top of
// its log provider. out receives stdout exporter output.
func (o *rootOptions) load(ctx context.Context, out io.Writer) (*environment, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		lvl, err := logging.LevelFromString(o.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = lvl
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry, telemetry.WithStdout(out))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &environment{cfg: cfg, logger: logger, tel: tel}, nil
}

// backendFactory returns the configured span backend. The otel backend
// shares e.tel, which stays up for the logger until close.
func (e *environment) backendFactory() (exporter.BackendFactory, error) {
	if e.cfg.Exporter.Backend == config.BackendOTel {
		return func(context.Context) (exporter.Backend, error) {
			return telemetry.NewSharedBackend(e.tel)
		}, nil
	}
	return agent.BackendFactory(e.cfg, e.logger)
}

// startAgent builds the configured backend and starts a span pipeline.
func (e *environment) startAgent(ctx context.Context, opts ...agent.Option) (*agent.Agent, error) {
	factory, err := e.backendFactory()
	if err != nil {
		return nil, err
	}
	a := agent.New(e.cfg, factory, e.logger, opts...)
	if err := a.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start span exporter: %w", err)
	}
	return a, nil
}

// stopAgent drains the pipeline. It runs after ctx may have been cancelled,
// so it waits on its own deadline: the exporter's flush budget plus a margin
// for draining the queue.
func (e *environment) stopAgent(ctx context.Context, a *agent.Agent) error {
	budget := e.cfg.Exporter.ShutdownTimeout.Duration() + time.Second
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		e.logger.Error(ctx, "span exporter shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// close flushes the logger, then stops telemetry so buffered log records
// are exported last.
func (e *environment) close(ctx context.Context) {
	_ = e.logger.Sync()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Exporter.ShutdownTimeout.Duration())
	defer cancel()
	if err := e.tel.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry shutdown failed: %v\n", err)
	}
}
