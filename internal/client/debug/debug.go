// Package debug provides file-backed logging for the TUI client, where
// stdout belongs to the terminal renderer.
package debug

import (
	"log/slog"
	"os"
)

// NewLogger returns a logger appending to path, or a no-op logger when
// path is empty or the file cannot be opened.
func NewLogger(path string) *slog.Logger {
	if path == "" {
		return slog.New(slog.DiscardHandler)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
