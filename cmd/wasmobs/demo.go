package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero/api"

	"github.com/fyrsmithlabs/wasmobs/internal/agent"
	"github.com/fyrsmithlabs/wasmobs/internal/demo"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
)

func newDemoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in example module",
		Long: `Instrument a small built-in module exporting add, multiply and fail,
call each once, and export the resulting spans. fail traps on purpose so
that a failed span is produced as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, root)
		},
	}
}

func runDemo(cmd *cobra.Command, root *rootOptions) error {
	ctx := cmd.Context()

	env, err := root.load(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer env.close(ctx)

	a, err := env.startAgent(ctx)
	if err != nil {
		return err
	}

	demoErr := demoCalls(logging.WithModule(ctx, "demo"), cmd, env, a)
	if err := env.stopAgent(ctx, a); err != nil {
		return err
	}
	if demoErr != nil {
		return demoErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d spans (runtime %s)\n", a.Exported(), a.RuntimeID())
	return nil
}

func demoCalls(ctx context.Context, cmd *cobra.Command, env *environment, a *agent.Agent) error {
	r, err := agent.NewRuntime(ctx, env.cfg.Runtime)
	if err != nil {
		return err
	}
	defer r.Close(context.WithoutCancel(ctx))

	inst, err := a.Load(ctx, r, demo.Module)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "instrumented %d functions: %v\n", inst.Len(), inst.Names())

	res, err := inst.ExportedFunction("add").Call(ctx, api.EncodeI32(5), api.EncodeI32(3))
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	fmt.Fprintf(out, "add(5, 3) = %d\n", api.DecodeI32(res[0]))

	res, err = inst.ExportedFunction("multiply").Call(ctx, api.EncodeI32(4), api.EncodeI32(7))
	if err != nil {
		return fmt.Errorf("multiply: %w", err)
	}
	fmt.Fprintf(out, "multiply(4, 7) = %d\n", api.DecodeI32(res[0]))

	if _, err := inst.ExportedFunction("fail").Call(ctx); err != nil {
		fmt.Fprintf(out, "fail() trapped as expected\n")
	} else {
		return fmt.Errorf("fail: expected a trap")
	}
	return nil
}
