package main

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/thainguyen06/pmc/internal/record"
)

// printJSON marshals v to stdout, one indented JSON document (spec §6 `list
// --format json`).
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const (
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// colorsEnabled reports whether stdout is an interactive terminal (spec §6
// CLI output formatting); piped/redirected output never gets ANSI codes.
func colorsEnabled() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func colorStatus(status record.Status) string {
	switch status {
	case record.StatusRunning:
		return colorGreen
	case record.StatusCrashed:
		return colorRed
	case record.StatusStopped:
		return colorDim
	default:
		return ""
	}
}

// paint wraps s in color, unless output isn't a terminal.
func paint(color, s string) string {
	if color == "" || !colorsEnabled() {
		return s
	}
	return color + s + colorReset
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func formatUptime(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh%02dm", secs/3600, (secs%3600)/60)
	}
}
