package agent

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/fyrsmithlabs/wasmobs/internal/config"
)

// NewRuntime creates a wazero runtime, with WASI host functions when
// enabled so modules built for wasi_snapshot_preview1 instantiate.
func NewRuntime(ctx context.Context, cfg config.RuntimeConfig) (wazero.Runtime, error) {
	r := wazero.NewRuntime(ctx)
	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			_ = r.Close(ctx)
			return nil, fmt.Errorf("instantiate wasi: %w", err)
		}
	}
	return r, nil
}
