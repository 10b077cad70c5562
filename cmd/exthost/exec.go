package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/exthost/internal/extension"
)

func newExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Execute a command, activating the extension that contributes it",
		Long: `Execute runs one command and prints its result as JSON. Arguments that
parse as JSON are passed as values, anything else as strings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exec(cmd.Context(), args[0], parseArgs(args[1:]))
		},
	}
}

func (a *app) exec(ctx context.Context, id string, args []any) (err error) {
	rt, err := a.newRuntime(extension.ModeProduction)
	if err != nil {
		return err
	}
	if err := a.echo(rt); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*a.cfg.Extensions.DeactivationTimeout)
		defer cancel()
		err = errors.Join(err, rt.Shutdown(shutdownCtx))
	}()

	if _, err := rt.Discover(); err != nil {
		a.logger.Warn("discovery incomplete", "error", err)
	}
	if _, err := rt.ActivateByEvent(ctx, extension.EventStartup); err != nil {
		a.logger.Warn("startup activation failed", "error", err)
	}

	result, err := rt.ExecuteCommand(ctx, id, args...)
	if err != nil {
		return err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(a.stdout, string(out))
	return nil
}

// parseArgs decodes each argument as JSON, falling back to the raw string.
func parseArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			v = s
		}
		args[i] = v
	}
	return args
}
