package apitest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/extension/api"
)

func TestRecorderRecordsCalls(t *testing.T) {
	r := New()
	ctx := api.WithOwner(context.Background(), "demo")

	choice, err := r.Window().ShowMessage(ctx, api.SeverityInfo, "hello", "OK")
	require.NoError(t, err)
	assert.Equal(t, "OK", choice)

	ch, err := r.Window().CreateOutputChannel(ctx, "Demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", ch.Owner())
	require.NoError(t, ch.AppendLine("line"))

	calls := r.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Call{Group: "window", Method: "ShowMessage", Args: []any{api.SeverityInfo, "hello", []string{"OK"}}}, calls[0])
	assert.Equal(t, 1, r.CallCount("CreateOutputChannel"))

	notes := r.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, api.TopicOutputAppend, notes[0].Topic)
	assert.Equal(t, "demo", notes[0].Owner)
}

func TestRecorderTracksLiveHandles(t *testing.T) {
	r := New()
	ctx := context.Background()

	item, err := r.Window().CreateStatusBarItem(ctx, api.AlignLeft, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultOwner, item.Owner())
	msg, err := r.Window().SetStatusBarMessage(ctx, "busy", 0)
	require.NoError(t, err)
	_, err = r.Debug().StartDebugging(ctx, api.DebugConfiguration{Type: "go"})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Acquired())
	assert.Equal(t, 3, r.Live())

	require.NoError(t, item.Dispose())
	require.NoError(t, msg.Dispose())
	require.NoError(t, msg.Dispose())
	assert.Equal(t, 1, r.Live())

	r.Reset()
	assert.Zero(t, r.Acquired())
	assert.Empty(t, r.Calls())
}

func TestRecorderCommands(t *testing.T) {
	r := New()
	ctx := api.WithOwner(context.Background(), "demo")

	d, err := r.Commands().RegisterCommand(ctx, "demo.echo", func(_ context.Context, args ...any) (any, error) {
		return args[0], nil
	})
	require.NoError(t, err)

	got, err := r.Commands().ExecuteCommand(ctx, "demo.echo", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Equal(t, []string{"demo.echo"}, r.Commands().GetCommands(true))

	require.NoError(t, d.Dispose())
	assert.False(t, r.CommandBus().Has("demo.echo"))
	_, err = r.Commands().ExecuteCommand(ctx, "demo.echo")
	assert.ErrorIs(t, err, command.ErrCommandNotFound)
}

func TestRecorderClipboard(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.Env().WriteClipboard(ctx, "copied"))
	got, err := r.Env().ReadClipboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "copied", got)
	assert.Equal(t, "apitest", r.Env().AppName())
}
