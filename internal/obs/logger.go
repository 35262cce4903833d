// Package obs provides the ambient logging and metrics adapters used
// throughout the engine. The interfaces are deliberately small — callers
// depend on Logger/Metrics, never on zerolog or OpenTelemetry directly —
// mirroring internal/rag/service/options.go's Logger/Metrics interfaces
// from the teacher repo.
package obs

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured-logging interface every component depends on.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// ZerologLogger adapts rs/zerolog to the Logger interface.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewLogger builds a ZerologLogger. When json is false, output is a
// human-readable console writer; otherwise raw JSON lines are emitted,
// matching the LOG_JSON toggle from original_source/logging.py.
func NewLogger(level string, json bool) *ZerologLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var w = os.Stdout
	var logger zerolog.Logger
	if json {
		logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	} else {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
		logger = zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
	}
	return &ZerologLogger{log: logger}
}

func (l *ZerologLogger) with(ev *zerolog.Event, fields map[string]any) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}

func (l *ZerologLogger) Info(msg string, fields map[string]any) {
	l.with(l.log.Info(), fields).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, fields map[string]any) {
	l.with(l.log.Error(), fields).Msg(msg)
}

func (l *ZerologLogger) Debug(msg string, fields map[string]any) {
	l.with(l.log.Debug(), fields).Msg(msg)
}

// NoopLogger discards everything; useful as a test default.
type NoopLogger struct{}

func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
func (NoopLogger) Debug(string, map[string]any) {}
