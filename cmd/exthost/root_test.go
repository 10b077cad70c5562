package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/security"
)

const helloManifest = `{
  "name": "hello",
  "publisher": "demo",
  "version": "1.2.0",
  "main": "init.lua",
  "capabilities": ["commands", "window"],
  "activationEvents": ["onStartup"],
  "contributes": {"commands": [{"command": "demo.hello", "title": "Say Hello"}]}
}`

const helloLua = `
local ext = require("ext")

function activate(context)
    ext.window.showInformationMessage("started " .. context.id)
    context.subscribe(ext.commands.register("demo.hello", function(name)
        return "Hello, " .. (name or "world")
    end))
end
`

const lazyManifest = `{
  "name": "lazy",
  "publisher": "demo",
  "version": "0.1.0",
  "main": "init.lua",
  "capabilities": ["commands"],
  "activationEvents": ["onCommand:demo.sum"]
}`

const lazyLua = `
local ext = require("ext")

function activate(context)
    context.subscribe(ext.commands.register("demo.sum", function(a, b)
        return {sum = a + b}
    end))
end
`

type fixture struct {
	extDir string
	config string
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newFixture(t *testing.T, configBody string) fixture {
	t.Helper()
	base := t.TempDir()
	f := fixture{
		extDir: filepath.Join(base, "extensions"),
		config: filepath.Join(base, "config.yaml"),
	}
	writeFile(t, filepath.Join(f.extDir, "hello", extension.ManifestFile), helloManifest)
	writeFile(t, filepath.Join(f.extDir, "hello", "init.lua"), helloLua)
	writeFile(t, filepath.Join(f.extDir, "lazy", extension.ManifestFile), lazyManifest)
	writeFile(t, filepath.Join(f.extDir, "lazy", "init.lua"), lazyLua)
	writeFile(t, f.config, configBody)
	return f
}

func (f fixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", f.config, "--extensions", f.extDir}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidateCommand(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")

	out, _, err := f.run(t, "validate", filepath.Join(f.extDir, "hello"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok demo.hello 1.2.0")
	assert.Contains(t, out, "grants commands")
	assert.Contains(t, out, "grants window")
	assert.Contains(t, out, "command demo.hello")
}

func TestValidateCommandPolicyDenied(t *testing.T) {
	f := newFixture(t, `
log:
  level: error
policy:
  default:
    allowed_groups: [commands]
`)

	_, _, err := f.run(t, "validate", filepath.Join(f.extDir, "hello"))
	assert.ErrorIs(t, err, security.ErrPolicyDenied)
}

func TestValidateCommandOverride(t *testing.T) {
	f := newFixture(t, `
log:
  level: error
policy:
  default:
    allowed_groups: [commands]
  overrides:
    - extension: demo.hello
      allowed_groups: [commands, window]
`)

	out, _, err := f.run(t, "validate", filepath.Join(f.extDir, "hello"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok demo.hello")
}

func TestValidateCommandMissingEntry(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")
	require.NoError(t, os.Remove(filepath.Join(f.extDir, "hello", "init.lua")))

	_, _, err := f.run(t, "validate", filepath.Join(f.extDir, "hello"))
	assert.ErrorIs(t, err, extension.ErrEntryPointMissing)
}

func TestListCommand(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")
	writeFile(t, filepath.Join(f.extDir, "broken", extension.ManifestFile), "{")

	out, _, err := f.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "demo.hello")
	assert.Contains(t, out, "1.2.0")
	assert.Contains(t, out, "onCommand:demo.sum")
	assert.Contains(t, out, "invalid")
}

func TestListCommandAlignsColumns(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")

	out, _, err := f.run(t, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "\x1b[", "no color when stdout is not a terminal")

	var header, hello, lazy string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "VERSION"):
			header = line
		case strings.Contains(line, "demo.hello"):
			hello = line
		case strings.Contains(line, "demo.lazy"):
			lazy = line
		}
	}
	require.NotEmpty(t, header)
	col := strings.Index(header, "VERSION")
	assert.Equal(t, col, strings.Index(hello, "1.2.0"))
	assert.Equal(t, col, strings.Index(lazy, "0.1.0"))
	assert.Equal(t, strings.Index(header, "ACTIVATION"), strings.Index(hello, "onStartup"))
}

func TestValidateCommandIsPlainWhenNotATerminal(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")

	out, _, err := f.run(t, "validate", filepath.Join(f.extDir, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "ok demo.hello 1.2.0\n  grants commands\n  grants window\n  command demo.hello\n", out)
}

func TestExecCommand(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")

	out, _, err := f.run(t, "exec", "demo.hello", "gopher")
	require.NoError(t, err)
	assert.Equal(t, "\"Hello, gopher\"\n", out)
}

func TestExecCommandActivatesLazily(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")

	out, _, err := f.run(t, "exec", "demo.sum", "2", "3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sum": 5}`, out)
}

func TestExecCommandUnknown(t *testing.T) {
	f := newFixture(t, "log:\n  level: error\n")

	_, _, err := f.run(t, "exec", "demo.nothing")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	f := newFixture(t, "log:\n  level: info\n")

	_, logs, err := f.run(t, "run", "--for", "200ms")
	require.NoError(t, err)
	assert.Contains(t, logs, "started demo.hello")
	assert.Contains(t, logs, "extension=demo.hello")
	assert.Contains(t, logs, "extension host running")
	assert.Contains(t, logs, "shutting down")
}

func TestInvalidConfig(t *testing.T) {
	f := newFixture(t, "log:\n  level: loud\n")

	_, _, err := f.run(t, "list")
	assert.Error(t, err)
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	f := newFixture(t, "log:\n  level: info\n")

	_, logs, err := f.run(t, "--log-level", "error", "run", "--for", "50ms")
	require.NoError(t, err)
	assert.NotContains(t, logs, "extension host running")
}

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"1", "true", `{"a":[1]}`, "plain", `"quoted"`})
	assert.Equal(t, []any{1.0, true, map[string]any{"a": []any{1.0}}, "plain", "quoted"}, got)
}
