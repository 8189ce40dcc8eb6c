// Package ui renders command output: coloured notices, release notes and
// the download list.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/CloudNativeWorks/sak-client/internal/update"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	cRed  = lipgloss.Color("196")
	cBlue = lipgloss.Color("39")
	cGray = lipgloss.Color("245")

	errorStyle  = lipgloss.NewStyle().Foreground(cRed)
	infoStyle   = lipgloss.NewStyle().Foreground(cBlue)
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(cGray)
)

// Notice renders an inline message: errors in red, everything else in blue
func Notice(msg update.Message) string {
	if msg.Level == update.LevelError {
		return errorStyle.Render(msg.Text)
	}
	return infoStyle.Render(msg.Text)
}

// RenderMarkdown renders release notes for a terminal of the given width,
// falling back to the raw text if glamour cannot be set up.
func RenderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("auto"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// PrintDownloads writes the download list, headers in bold
func PrintDownloads(w io.Writer, rows []update.DownloadRow) {
	for _, r := range rows {
		switch r.Kind {
		case update.RowHeader:
			fmt.Fprintln(w, headerStyle.Render(r.Platform))
		default:
			url := r.URL
			if url == "" {
				url = dimStyle.Render("(not available)")
			}
			fmt.Fprintf(w, "  %s\n", url)
		}
	}
}

// PrintReport writes the outcome of an update check
func PrintReport(w io.Writer, r *update.Report, width int) {
	fmt.Fprintf(w, "Current version: %s\n", r.CurrentVersion)
	if r.LatestVersion != "" {
		fmt.Fprintf(w, "Latest version:  %s\n", r.LatestVersion)
	}
	if !r.Newer {
		fmt.Fprintln(w, infoStyle.Render("You are running the latest version."))
		return
	}

	if r.HTMLURL != "" {
		fmt.Fprintf(w, "Release page:    %s\n", r.HTMLURL)
	}
	if notes := RenderMarkdown(r.Notes, width); notes != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, notes)
	}
	fmt.Fprintln(w)
	PrintDownloads(w, r.Downloads)
}
