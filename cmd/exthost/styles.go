package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette shared by every report the CLI prints.
const (
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorMuted     = lipgloss.Color("#6B7280")
	colorSuccess   = lipgloss.Color("#10B981")
	colorError     = lipgloss.Color("#EF4444")
	colorHighlight = lipgloss.Color("#3B82F6")
)

// styles are bound to the writer they render for, so color is dropped
// when output is not a terminal.
type styles struct {
	header  lipgloss.Style
	cell    lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	command lipgloss.Style
	border  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(colorPrimary).PaddingRight(2),
		cell:    r.NewStyle().PaddingRight(2),
		muted:   r.NewStyle().Foreground(colorMuted).PaddingRight(2),
		success: r.NewStyle().Bold(true).Foreground(colorSuccess),
		failure: r.NewStyle().Foreground(colorError).PaddingRight(2),
		command: r.NewStyle().Foreground(colorHighlight),
		border:  r.NewStyle().Foreground(colorMuted),
	}
}
