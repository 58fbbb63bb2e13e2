package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/agent"
	"github.com/fyrsmithlabs/wasmobs/internal/instrument"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
)

type runOptions struct {
	only []string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <module.wasm> <function> [args...]",
		Short: "Call one exported function and print its results",
		Long: `Instantiate a module with its exports instrumented, call one function
with the given arguments, print the results, and flush the call's span.

Arguments are parsed according to the function's parameter types (i32, i64,
f32, f64). Integers accept 0x and 0b prefixes.

Examples:
  # Add two numbers
  wasmobs run math.wasm add 5 3

  # Only instrument add; other exports run untraced
  wasmobs run math.wasm multiply 4 7 --only add`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunction(cmd, root, opts, args[0], args[1], args[2:])
		},
	}

	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "instrument only these exports (default all)")

	return cmd
}

func runFunction(cmd *cobra.Command, root *rootOptions, opts *runOptions, path, name string, args []string) error {
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

	a, err := env.startAgent(ctx)
	if err != nil {
		return err
	}

	callErr := callExport(ctx, cmd, env, a, wasm, path, name, args, instrumentOptions(opts)...)
	return errors.Join(callErr, env.stopAgent(ctx, a))
}

func instrumentOptions(opts *runOptions) []instrument.Option {
	if len(opts.only) == 0 {
		return nil
	}
	return []instrument.Option{instrument.WithFilter(func(name string) bool {
		return slices.Contains(opts.only, name)
	})}
}

// callExport instantiates wasm, calls name and prints the results.
func callExport(ctx context.Context, cmd *cobra.Command, env *environment, a *agent.Agent, wasm []byte, module, name string, args []string, opts ...instrument.Option) error {
	r, err := agent.NewRuntime(ctx, env.cfg.Runtime)
	if err != nil {
		return err
	}
	defer r.Close(context.WithoutCancel(ctx))

	inst, err := a.Load(ctx, r, wasm, opts...)
	if err != nil {
		return err
	}

	fn := inst.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("module does not export a function named %q (exports: %v)", name, inst.Exports())
	}

	params, err := instrument.EncodeParams(fn.Definition(), args)
	if err != nil {
		return err
	}

	ctx = logging.WithModule(ctx, module)
	results, err := fn.Call(ctx, params...)
	if err != nil {
		env.logger.Warn(ctx, "function call failed", zap.String("function", name), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}

	for _, v := range instrument.DecodeResults(fn.Definition(), results) {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}
