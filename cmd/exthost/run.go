package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/exthost/internal/config"
	"github.com/dshills/exthost/internal/extension"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		dev      bool
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Activate startup extensions and serve until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := extension.ModeProduction
			if dev {
				mode = extension.ModeDevelopment
			}
			return a.run(cmd.Context(), mode, duration)
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "run extensions in development mode")
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func (a *app) run(ctx context.Context, mode extension.Mode, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	rt, err := a.newRuntime(mode)
	if err != nil {
		return err
	}
	if err := a.echo(rt); err != nil {
		return err
	}

	if _, err := rt.Discover(); err != nil {
		a.logger.Warn("discovery incomplete", "error", err)
	}
	activated, err := rt.ActivateByEvent(ctx, extension.EventStartup)
	if err != nil {
		a.logger.Warn("startup activation failed", "error", err)
	}
	a.logger.Info("extension host running", "extensions", len(rt.ListExtensions()), "activated", len(activated))

	current := a.cfg
	a.loader.Watch(func(next *config.Config) {
		if delta := config.SettingsDelta(current, next); len(delta) > 0 {
			rt.Host().UpdateConfiguration(delta)
		}
		current = next
	})

	<-ctx.Done()
	st := rt.Status()
	a.logger.Info("shutting down",
		"active", st.ActiveExtensions,
		"output_channels", st.Resources.OutputChannels,
		"terminals", st.Resources.Terminals,
		"status_bar_items", st.Resources.StatusBarItems,
		"webview_panels", st.Resources.WebviewPanels,
	)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*a.cfg.Extensions.DeactivationTimeout)
	defer cancel()
	return rt.Shutdown(shutdownCtx)
}
