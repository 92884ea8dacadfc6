package observ

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// InitLogging configures the process-wide logger. Format "console" is
// for local runs; everything else emits JSON lines.
func InitLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := zerolog.New(os.Stdout)
	if format == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"})
	}
	logger = out.Level(lvl).With().Timestamp().Logger()
}

// Log emits one structured event. Event names are snake_case.
func Log(event string, kv map[string]any) {
	logger.Info().Fields(kv).Msg(event)
}

// Warn emits a warning-level event.
func Warn(event string, kv map[string]any) {
	logger.Warn().Fields(kv).Msg(event)
}

// Logger returns the configured logger for callers that want typed
// field builders.
func Logger() *zerolog.Logger {
	return &logger
}
