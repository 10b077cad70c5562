package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/exthost/internal/extension"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check an extension's manifest, engine and policy without activating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.validate(args[0])
		},
	}
}

func (a *app) validate(dir string) error {
	m, err := extension.LoadManifestFromDir(dir)
	if err != nil {
		return err
	}
	if err := m.CheckEngine(a.cfg.Extensions.HostVersion); err != nil {
		return fmt.Errorf("%s: %w", m.ID(), err)
	}

	policy, err := a.cfg.DefaultPolicy()
	if err != nil {
		return err
	}
	overrides, err := a.cfg.Policies()
	if err != nil {
		return err
	}
	if p, ok := overrides[m.ID()]; ok {
		policy = p
	}
	if err := policy.Check(m.Request()); err != nil {
		return err
	}

	entry := filepath.Join(dir, filepath.FromSlash(m.Main))
	if filepath.Ext(entry) == ".lua" {
		if info, err := os.Stat(entry); err != nil || info.IsDir() {
			return fmt.Errorf("%s: %w: %s", m.ID(), extension.ErrEntryPointMissing, m.Main)
		}
	}

	st := newStyles(a.stdout)
	var sb strings.Builder
	sb.WriteString(st.success.Render("ok") + " " + m.ID() + " " + m.Version + "\n")
	for _, g := range policy.Grantable(m.Request()) {
		sb.WriteString("  grants " + st.command.Render(string(g)) + "\n")
	}
	for _, c := range m.Contributes.Commands {
		sb.WriteString("  command " + st.command.Render(c.Command) + "\n")
	}
	_, err = io.WriteString(a.stdout, sb.String())
	return err
}
