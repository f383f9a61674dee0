package cli

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// newLogger builds the CLI logger: human-readable text on stderr, plus a
// JSON stream when a log file is requested. Both sinks share one level.
func newLogger(verbose bool, logFile string) (*slog.Logger, io.Closer, error) {
	level := new(slog.LevelVar)
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	var closer io.Closer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		closer = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}
