package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/wasmobs/internal/demo"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
)

// writeConfig writes a quiet config and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

const quietConfig = `
logging:
  level: error
telemetry:
  enabled: true
  exporter: stdout
  metrics:
    enabled: false
`

// lockedBuffer is written by the command and by the exporter goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &lockedBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Commands(t *testing.T) {
	cmd := newRootCmd()
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
		assert.NotEmpty(t, c.Short, c.Name())
	}
	for _, want := range []string{"run", "serve", "demo", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestDemoCmd(t *testing.T) {
	out, err := execute(t, "demo", "--config", writeConfig(t, quietConfig))
	require.NoError(t, err)

	assert.Contains(t, out, "add(5, 3) = 8")
	assert.Contains(t, out, "multiply(4, 7) = 28")
	assert.Contains(t, out, "fail() trapped as expected")
	assert.Contains(t, out, "exported 3 spans")
	// stdout exporter output
	assert.Contains(t, out, `"Name": "wasm::add"`)
}

func TestRunCmd(t *testing.T) {
	module := filepath.Join(t.TempDir(), "demo.wasm")
	require.NoError(t, os.WriteFile(module, demo.Module, 0644))
	cfg := writeConfig(t, quietConfig)

	t.Run("prints results", func(t *testing.T) {
		out, err := execute(t, "run", module, "multiply", "6", "7", "--config", cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "42\n")
		assert.Contains(t, out, `"Name": "wasm::multiply"`)
	})

	t.Run("uninstrumented export runs without a span", func(t *testing.T) {
		out, err := execute(t, "run", module, "add", "1", "2", "--only", "multiply", "--config", cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "3\n")
		assert.NotContains(t, out, "wasm::add")
	})

	t.Run("trap is an error", func(t *testing.T) {
		out, err := execute(t, "run", module, "fail", "--config", cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable")
		assert.Contains(t, out, `"Name": "wasm::fail"`)
	})

	t.Run("unknown export", func(t *testing.T) {
		_, err := execute(t, "run", module, "divide", "1", "2", "--config", cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"divide"`)
	})

	t.Run("bad argument", func(t *testing.T) {
		_, err := execute(t, "run", module, "add", "x", "2", "--config", cfg)
		require.Error(t, err)
	})

	t.Run("missing module", func(t *testing.T) {
		_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.wasm"), "add", "--config", cfg)
		require.Error(t, err)
	})
}

func TestLoad_LogLevelOverride(t *testing.T) {
	opts := &rootOptions{configPath: writeConfig(t, quietConfig), logLevel: "trace"}
	env, err := opts.load(context.Background(), io.Discard)
	require.NoError(t, err)
	defer env.close(context.Background())
	assert.Equal(t, logging.TraceLevel, env.cfg.Logging.Level)

	opts.logLevel = "loud"
	_, err = opts.load(context.Background(), io.Discard)
	assert.Error(t, err)
}

func TestLoad_OTELLogOutputNeedsLogExport(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: error
  output:
    console: true
    otel: true
telemetry:
  enabled: true
  exporter: stdout
`)
	_, err := (&rootOptions{configPath: path}).load(context.Background(), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.otel")
}
