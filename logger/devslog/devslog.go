package devslog

import (
	"io"
	"log/slog"

	"github.com/golang-cz/devslog"
)

// New returns a colourised multi-line logger for terminals.
func New(w io.Writer, level slog.Level) *slog.Logger {
	opts := &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			AddSource: level == slog.LevelDebug,
			Level:     level,
		},
		NewLineAfterLog:    true,
		MaxErrorStackTrace: 40,
		MaxSlicePrintSize:  40,
		SortKeys:           true,
		TimeFormat:         "[15:04:05]",
		DebugColor:         devslog.Magenta,
		StringerFormatter:  true,
	}

	return slog.New(devslog.NewHandler(w, opts))
}
