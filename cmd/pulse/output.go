package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gopulse/internal/theme"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	dimStyle   = theme.DimmedStyle
	errorStyle = theme.ErrorStyle
	okStyle    = lipgloss.NewStyle().Foreground(theme.ColorGreen)
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// writeJSON prints raw entity JSON as an indented array.
func writeJSON(w io.Writer, raws []json.RawMessage) error {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raws)
}

// parseID parses a positional numeric id argument.
func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usagef("%s must be a positive integer, got %q", name, s)
	}
	return id, nil
}

// exactArgs checks the number of positional arguments.
func exactArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return usagef("usage: pulse %s", usage)
	}
	return nil
}
