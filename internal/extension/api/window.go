package api

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension/security"
)

type windowAPI struct{ h *Host }

func (w windowAPI) ShowMessage(ctx context.Context, severity Severity, message string, items ...string) (string, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.showMessage")
	if err != nil {
		return "", err
	}
	if !severity.Valid() {
		return "", invalid("unknown severity %q", severity)
	}
	if strings.TrimSpace(message) == "" {
		return "", invalid("empty message")
	}

	items = slices.Clone(items)
	w.h.Notify(TopicWindowMessage, owner, MessageEvent{Severity: severity, Message: message, Items: items})
	return w.h.prompter.PromptMessage(ctx, owner, severity, message, items)
}

func (w windowAPI) ShowQuickPick(ctx context.Context, items []string, opts QuickPickOptions) (string, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.showQuickPick")
	if err != nil {
		return "", err
	}
	return w.h.prompter.PromptQuickPick(ctx, owner, slices.Clone(items), opts)
}

func (w windowAPI) ShowInputBox(ctx context.Context, opts InputBoxOptions) (string, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.showInputBox")
	if err != nil {
		return "", err
	}
	return w.h.prompter.PromptInput(ctx, owner, opts)
}

func (w windowAPI) CreateOutputChannel(ctx context.Context, name string) (*OutputChannel, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.createOutputChannel")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, invalid("empty output channel name")
	}

	ch := NewOutputChannel(owner, name, w.h)
	if err := w.h.track(owner, ch, ch.close); err != nil {
		return nil, err
	}
	return ch, nil
}

func (w windowAPI) CreateStatusBarItem(ctx context.Context, alignment Alignment, priority int) (*StatusBarItem, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.createStatusBarItem")
	if err != nil {
		return nil, err
	}
	if alignment != AlignLeft && alignment != AlignRight {
		return nil, invalid("unknown alignment %d", alignment)
	}
	if priority < 0 {
		return nil, invalid("negative priority %d", priority)
	}

	item := NewStatusBarItem(owner, alignment, priority, w.h)
	if err := w.h.track(owner, item, item.close); err != nil {
		return nil, err
	}
	return item, nil
}

func (w windowAPI) SetStatusBarMessage(ctx context.Context, message string, timeout time.Duration) (disposable.Disposable, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.setStatusBarMessage")
	if err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, invalid("negative timeout %s", timeout)
	}

	w.h.Notify(TopicStatusBarMessage, owner, StatusBarMessageEvent{Message: message})

	clear := disposable.FuncNoErr(func() {
		w.h.Notify(TopicStatusBarMessage, owner, StatusBarMessageEvent{})
	})
	reg, err := w.h.retain(owner, clear)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		// Firing after an explicit Dispose is a no-op.
		time.AfterFunc(timeout, func() { _ = reg.Dispose() })
	}
	return reg, nil
}

func (w windowAPI) CreateTerminal(ctx context.Context, opts TerminalOptions) (*Terminal, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.createTerminal")
	if err != nil {
		return nil, err
	}
	if opts.Cwd != "" && !filepath.IsAbs(opts.Cwd) {
		return nil, invalid("terminal cwd must be absolute, got %q", opts.Cwd)
	}

	term := NewTerminal(owner, opts, w.h)
	if err := w.h.track(owner, term, term.close); err != nil {
		return nil, err
	}
	w.h.Notify(TopicTerminalCreated, owner, TerminalEvent{TerminalID: term.ID(), Name: term.Name()})
	return term, nil
}

func (w windowAPI) CreateWebviewPanel(ctx context.Context, viewType, title string, opts WebviewOptions) (*WebviewPanel, error) {
	owner, err := w.h.acquire(ctx, security.GroupWindow, "window.createWebviewPanel")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(viewType) == "" {
		return nil, invalid("empty webview view type")
	}

	panel := NewWebviewPanel(owner, viewType, title, opts, w.h)
	if err := w.h.track(owner, panel, panel.close); err != nil {
		return nil, err
	}
	w.h.Notify(TopicWebviewCreated, owner, WebviewEvent{PanelID: panel.ID(), ViewType: viewType, Title: title})
	return panel, nil
}

var _ Window = windowAPI{}
