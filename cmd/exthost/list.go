package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dshills/exthost/internal/extension"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered extensions",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			found, err := extension.NewLoader(extension.WithPaths(a.cfg.Extensions.Paths...)).Discover()
			if err != nil {
				a.logger.Warn("discovery incomplete", "error", err)
			}
			return a.printExtensions(found)
		},
	}
}

const pathColumn = 3

func (a *app) printExtensions(found []extension.Discovered) error {
	st := newStyles(a.stdout)
	if len(found) == 0 {
		_, err := fmt.Fprintln(a.stdout, st.muted.Render("no extensions found in "+strings.Join(a.cfg.Extensions.Paths, ", ")))
		return err
	}

	invalid := make(map[int]bool)
	rows := make([][]string, 0, len(found))
	for i, d := range found {
		if d.Err != nil {
			invalid[i] = true
			rows = append(rows, []string{d.ID, "-", "invalid: " + d.Err.Error(), d.Path})
			continue
		}
		events := strings.Join(d.Manifest.ActivationEvents, ",")
		if events == "" {
			events = "-"
		}
		rows = append(rows, []string{d.ID, d.Manifest.Version, events, d.Path})
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderStyle(st.border).
		Headers("ID", "VERSION", "ACTIVATION", "PATH").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return st.header
			case invalid[row]:
				return st.failure
			case col == pathColumn:
				return st.muted
			}
			return st.cell
		})
	_, err := fmt.Fprintln(a.stdout, t.Render())
	return err
}
