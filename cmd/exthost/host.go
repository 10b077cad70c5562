package main

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/exthost/internal/event"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/api"
	"github.com/dshills/exthost/internal/extension/lua"
)

// newRuntime builds the runtime from the loaded configuration.
func (a *app) newRuntime(mode extension.Mode) (*extension.Runtime, error) {
	cfg := a.cfg

	def, err := cfg.DefaultPolicy()
	if err != nil {
		return nil, err
	}
	overrides, err := cfg.Policies()
	if err != nil {
		return nil, err
	}

	host := api.NewHost(
		api.WithLogger(a.logger),
		api.WithAppInfo(api.AppInfo{
			Name:     cfg.App.Name,
			Root:     cfg.App.Root,
			Language: cfg.App.Language,
		}),
		api.WithWorkspaceFolders(cfg.Workspace.Folders...),
		api.WithConfiguration(cfg.FlatSettings()),
	)

	opts := []extension.Option{
		extension.WithHost(host),
		extension.WithLogger(a.logger),
		extension.WithEntryLoader(".lua", lua.NewLoader(lua.WithLoaderLogger(a.logger))),
		extension.WithDiscovery(extension.NewLoader(extension.WithPaths(cfg.Extensions.Paths...))),
		extension.WithPolicy(def),
		extension.WithHostVersion(cfg.Extensions.HostVersion),
		extension.WithActivationTimeout(cfg.Extensions.ActivationTimeout),
		extension.WithDeactivationTimeout(cfg.Extensions.DeactivationTimeout),
		extension.WithMode(mode),
	}
	if cfg.Extensions.StorageRoot != "" {
		opts = append(opts, extension.WithStorageRoot(cfg.Extensions.StorageRoot))
	}
	for id, p := range overrides {
		opts = append(opts, extension.WithPolicyFor(id, p))
	}
	return extension.NewRuntime(opts...), nil
}

// echo writes what extensions show the user to the log, standing in for
// a UI layer.
func (a *app) echo(rt *extension.Runtime) error {
	gate := rt.Host().Gate()
	owners := func(owner string) string {
		if id, ok := gate.ExtensionID(owner); ok {
			return id
		}
		return owner
	}

	bus := rt.Host().Events()
	subs := []struct {
		topic   event.Topic
		handler event.Handler
	}{
		{api.TopicWindowMessage, func(_ context.Context, ev event.Event) {
			msg, ok := ev.Payload.(api.MessageEvent)
			if !ok {
				return
			}
			kv := []any{"extension", owners(ev.Source)}
			if len(msg.Items) > 0 {
				kv = append(kv, "items", strings.Join(msg.Items, ","))
			}
			switch msg.Severity {
			case api.SeverityError:
				a.logger.Error(msg.Message, kv...)
			case api.SeverityWarning:
				a.logger.Warn(msg.Message, kv...)
			default:
				a.logger.Info(msg.Message, kv...)
			}
		}},
		{api.TopicOutputAppend, func(_ context.Context, ev event.Event) {
			if out, ok := ev.Payload.(api.OutputEvent); ok {
				a.logger.Info(strings.TrimRight(out.Text, "\n"), "extension", owners(ev.Source), "channel", out.Channel)
			}
		}},
		{api.TopicStatusBarMessage, func(_ context.Context, ev event.Event) {
			if sb, ok := ev.Payload.(api.StatusBarMessageEvent); ok && sb.Message != "" {
				a.logger.Debug("status: "+sb.Message, "extension", owners(ev.Source))
			}
		}},
	}

	var errs []error
	for _, s := range subs {
		if _, err := bus.Subscribe(s.topic, s.handler); err != nil {
			errs = append(errs, err)
		}
	}

	rt.Subscribe(func(ev extension.LifecycleEvent) {
		kv := []any{"extension", ev.ExtensionID, "from", ev.From, "to", ev.To}
		if ev.Reason != "" {
			kv = append(kv, "reason", ev.Reason)
		}
		if ev.Err != nil {
			a.logger.Warn("lifecycle", append(kv, "error", ev.Err)...)
			return
		}
		a.logger.Debug("lifecycle", kv...)
	})
	return errors.Join(errs...)
}
