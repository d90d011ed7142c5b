package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog Logger.
// APP_ENV=dev (or development) uses a human-friendly console writer.
func NewLogger(env string) zerolog.Logger {
	return zerolog.New(consoleWriter(env)).With().Timestamp().Logger()
}

// NewFileLogger tees log output into a file as JSON in addition to the
// usual console output. Collection runs are long; the file survives the
// terminal session. Falls back to console-only when the file cannot open.
func NewFileLogger(env, path string) zerolog.Logger {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l := NewLogger(env)
		l.Warn().Err(err).Str("path", path).Msg("log file unavailable, console only")
		return l
	}
	w := zerolog.MultiLevelWriter(consoleWriter(env), f)
	return zerolog.New(w).With().Timestamp().Logger()
}

func consoleWriter(env string) zerolog.LevelWriter {
	if env == "dev" || env == "development" {
		return zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return zerolog.MultiLevelWriter(os.Stdout)
}
