package api

import (
	"context"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension/security"
)

type commandsAPI struct{ h *Host }

func (c commandsAPI) RegisterCommand(ctx context.Context, id string, handler command.Handler) (disposable.Disposable, error) {
	owner, err := c.h.acquire(ctx, security.GroupCommands, "commands.registerCommand")
	if err != nil {
		return nil, err
	}

	if handler == nil {
		return nil, command.ErrNilHandler
	}
	d, err := c.h.commands.Register(id, owner, asOwner(owner, handler))
	if err != nil {
		return nil, err
	}
	return c.h.retain(owner, d)
}

func (c commandsAPI) ExecuteCommand(ctx context.Context, id string, args ...any) (any, error) {
	owner, err := c.h.acquire(ctx, security.GroupCommands, "commands.executeCommand")
	if err != nil {
		return nil, err
	}
	return c.h.commands.Execute(command.WithCaller(ctx, owner), id, args...)
}

func (c commandsAPI) GetCommands(filterInternal bool) []string {
	return c.h.commands.List(filterInternal)
}

// asOwner binds handler to the registering owner. Whoever executes the
// command is only visible through command.CallerFrom.
func asOwner(owner string, handler command.Handler) command.Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		return handler(WithOwner(ctx, owner), args...)
	}
}

var _ Commands = commandsAPI{}
