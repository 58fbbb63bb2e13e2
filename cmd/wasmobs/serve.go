package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/wasmobs/internal/agent"
	httpserver "github.com/fyrsmithlabs/wasmobs/internal/http"
	"github.com/fyrsmithlabs/wasmobs/internal/instrument"
)

type serveOptions struct {
	host string
	port int
	only []string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve <module.wasm>",
		Short: "Serve a module's exports over HTTP",
		Long: `Instantiate a module with its exports instrumented and serve it over HTTP
until interrupted.

Endpoints:
  GET  /health                     exporter state and pipeline counters
  GET  /metrics                    Prometheus metrics
  GET  /v1/functions               callable exports and their signatures
  POST /v1/functions/:name/invoke  call an export: {"args": ["5", "3"]}

Examples:
  wasmobs serve math.wasm
  wasmobs serve math.wasm --port 8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveModule(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (default server.host)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (default server.port)")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "instrument only these exports (default all)")

	return cmd
}

func serveModule(cmd *cobra.Command, root *rootOptions, opts *serveOptions, path string) error {
	ctx := cmd.Context()

	wasm, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read module %s: %w", path, err)
	}

	env, err := root.load(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer env.close(ctx)

	if cmd.Flags().Changed("host") {
		env.cfg.Server.Host = opts.host
	}
	if cmd.Flags().Changed("port") {
		env.cfg.Server.Port = opts.port
	}

	a, err := env.startAgent(ctx)
	if err != nil {
		return err
	}

	serveErr := serveInstance(ctx, env, a, wasm, filepath.Base(path), instrumentOptions(&runOptions{only: opts.only}))
	if err := env.stopAgent(ctx, a); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func serveInstance(ctx context.Context, env *environment, a *agent.Agent, wasm []byte, module string, opts []instrument.Option) error {
	r, err := agent.NewRuntime(ctx, env.cfg.Runtime)
	if err != nil {
		return err
	}
	defer r.Close(context.WithoutCancel(ctx))

	inst, err := a.Load(ctx, r, wasm, opts...)
	if err != nil {
		return err
	}

	srv, err := httpserver.NewServer(a, inst, env.logger.Named("http"), &httpserver.Config{
		Host:   env.cfg.Server.Host,
		Port:   env.cfg.Server.Port,
		Module: module,
	}, httpserver.WithMeter(env.tel.Meter("github.com/fyrsmithlabs/wasmobs/internal/http")))
	if err != nil {
		return err
	}

	env.logger.Info(ctx, "serving module",
		zap.String("module", module),
		zap.Strings("instrumented", inst.Names()),
		zap.String("addr", env.cfg.Server.Addr()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), env.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
