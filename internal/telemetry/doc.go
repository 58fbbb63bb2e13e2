// Package telemetry exports instrumented wasm calls through OpenTelemetry.
//
// # Overview
//
// Each completed call becomes a root span named "wasm::<function>" carrying
// the call's original start and end timestamps, and one sample on the
// "wasm.function.duration" histogram. Spans go to an OTLP collector (gRPC or
// HTTP), to stdout, or nowhere.
//
// # Usage
//
// The exporter task builds the backend on its own goroutine:
//
//	factory := telemetry.NewBackendFactory(cfg)
//	exp := exporter.New(rx, factory)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  exporter: otlp          # otlp | stdout | none
//	  protocol: grpc          # grpc | http/protobuf
//	  endpoint: "localhost:4317"
//	  service_name: "wasmobs"
//	  environment: "development"
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	backend := tt.Backend(t)
//	_ = backend.Export(ctx, s)
//	tt.AssertSpanExists(t, "wasm::add")
package telemetry
