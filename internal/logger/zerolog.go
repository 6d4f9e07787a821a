package logger

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of zerolog. Key/value arguments
// follow the slog convention of alternating keys and values.
type ZerologLogger struct {
	z      zerolog.Logger
	prefix string
}

// Console creates a zerolog Logger with human readable console output.
func Console(w io.Writer, level slog.Level) Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	z := zerolog.New(out).Level(zerologLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{z: z}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (l *ZerologLogger) Debug(msg string, args ...any) {
	l.emit(l.z.Debug(), msg, args)
}

func (l *ZerologLogger) Info(msg string, args ...any) {
	l.emit(l.z.Info(), msg, args)
}

func (l *ZerologLogger) Warn(msg string, args ...any) {
	l.emit(l.z.Warn(), msg, args)
}

func (l *ZerologLogger) Error(msg string, args ...any) {
	l.emit(l.z.Error(), msg, args)
}

func (l *ZerologLogger) With(args ...any) Logger {
	c := l.z.With()
	for i := 0; i+1 < len(args); i += 2 {
		c = c.Interface(l.key(args[i]), args[i+1])
	}
	return &ZerologLogger{z: c.Logger(), prefix: l.prefix}
}

func (l *ZerologLogger) WithGroup(name string) Logger {
	if name == "" {
		return l
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &ZerologLogger{z: l.z, prefix: prefix}
}

func (l *ZerologLogger) emit(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		e.Interface(l.key(args[i]), args[i+1])
	}
	e.Msg(msg)
}

func (l *ZerologLogger) key(k any) string {
	key, ok := k.(string)
	if !ok {
		key = fmt.Sprintf("%v", k)
	}
	if l.prefix != "" {
		return l.prefix + "." + key
	}
	return key
}
