package api

import (
	"context"

	"github.com/dshills/exthost/internal/extension/security"
)

// allowedExternalSchemes are the schemes OpenExternal hands to the OS.
var allowedExternalSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
}

type envAPI struct{ h *Host }

func (e envAPI) AppName() string   { return e.h.app.Name }
func (e envAPI) AppRoot() string   { return e.h.app.Root }
func (e envAPI) Language() string  { return e.h.app.Language }
func (e envAPI) MachineID() string { return e.h.machineID }
func (e envAPI) SessionID() string { return e.h.sessionID }

func (e envAPI) ReadClipboard(ctx context.Context) (string, error) {
	if _, err := e.h.acquire(ctx, security.GroupEnv, "env.readClipboard"); err != nil {
		return "", err
	}
	e.h.mu.RLock()
	defer e.h.mu.RUnlock()
	return e.h.clipboard, nil
}

func (e envAPI) WriteClipboard(ctx context.Context, text string) error {
	owner, err := e.h.acquire(ctx, security.GroupEnv, "env.writeClipboard")
	if err != nil {
		return err
	}
	e.h.mu.Lock()
	e.h.clipboard = text
	e.h.mu.Unlock()

	e.h.Notify(TopicClipboard, owner, len(text))
	return nil
}

func (e envAPI) OpenExternal(ctx context.Context, uri URI) (bool, error) {
	owner, err := e.h.acquire(ctx, security.GroupEnv, "env.openExternal")
	if err != nil {
		return false, err
	}
	if !allowedExternalSchemes[uri.Scheme] {
		return false, invalid("scheme %q cannot be opened externally", uri.Scheme)
	}

	e.h.Notify(TopicOpenExternal, owner, ExternalEvent{URI: uri})
	return true, nil
}

var _ Env = envAPI{}
