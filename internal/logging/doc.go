// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stderr console + OpenTelemetry log bridge)
//   - Automatic context field injection (trace_id, wasm.module, request.id)
//   - Encoder-level secret redaction
//   - Sampling below Error (errors are never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithModule(ctx, "demo")
//	logger.Info(ctx, "module instrumented", zap.Int("functions", 3))
//
// Components that take a *zap.Logger receive logger.Underlying().
//
// # Configuration Precedence
//
//  1. Defaults (NewDefaultConfig)
//  2. File (config.yaml, section "logging")
//  3. Environment variables (WASMOBS_LOGGING_*)
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	component := New(WithLogger(tl.Underlying()))
//	tl.AssertLogged(t, zapcore.WarnLevel, "correlation mismatch")
package logging
