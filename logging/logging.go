// Package logging wires the application's default slog.Logger to a
// time-stamped console handler, colorized when writing to a terminal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/RekadzeAV/rtspcam/config"
)

// Init installs a tint-backed slog.Logger as the process default,
// writing to w at the level cfg requests. Pass os.Stdout for normal
// interactive use; a io.Discard writer is handy in tests that only
// care whether logging panics, not what it prints.
func Init(cfg *config.Config, w io.Writer) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      cfg.SlogLevel(),
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// WithSession returns a logger tagged with the session's correlation
// ID, so every log line from one session's goroutines can be grepped
// out of a process running several at once.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With("session", sessionID)
}
