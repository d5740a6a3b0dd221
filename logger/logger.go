package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/pure-golang/report-mailer/logger/devslog"
	"github.com/pure-golang/report-mailer/logger/noop"
	"github.com/pure-golang/report-mailer/logger/stdjson"
)

type Level string
type Provider string
type contextKeyT string

var contextKey = contextKeyT("github.com/pure-golang/report-mailer/logger")

const (
	INFO  Level = "info"
	ERROR Level = "error"
	WARN  Level = "warn"
	DEBUG Level = "debug"

	ProviderDevSlog Provider = "dev"      // human readable, for terminals
	ProviderStdJson Provider = "std_json" // for log collectors
	ProviderNoop    Provider = "noop"     // for unit tests
)

// Config selects the slog handler. Logs go to stderr so that stdout carries
// only the command transcript.
type Config struct {
	Provider Provider `envconfig:"LOG_PROVIDER" default:"dev" desc:"Log handler (dev, std_json, noop)"`
	Level    Level    `envconfig:"LOG_LEVEL" default:"warn" desc:"Minimum log level (debug, info, warn, error)"`
}

// NewDefault creates a slog.Logger writing to stderr.
func NewDefault(c Config) *slog.Logger {
	return New(c, os.Stderr)
}

// New creates a slog.Logger writing to w.
func New(c Config, w io.Writer) *slog.Logger {
	level := convertLevel(c.Level)
	switch c.Provider {
	case ProviderDevSlog:
		return devslog.New(w, level)
	case ProviderNoop:
		return noop.NewNoop()
	case ProviderStdJson:
		fallthrough
	default:
		return stdjson.New(w, level)
	}
}

// InitDefault creates a new instance of slog.Logger and set it by default.
func InitDefault(c Config) {
	slog.SetDefault(NewDefault(c))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Default().Error(err.Error())
	}))
}

// FromContext extracts the logger from ctx, or returns the default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}

// NewContext packs l into ctx.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey, l)
}

// WithErr return default logger with error.
func WithErr(err error) *slog.Logger {
	return appendErr(slog.Default(), err)
}

// FromContextWithErr extract logger from context and attach error field.
func FromContextWithErr(ctx context.Context, err error) *slog.Logger {
	return appendErr(FromContext(ctx), err)
}

// FromContextWithErrIf is FromContextWithErr, or a no-op logger if err == nil.
func FromContextWithErrIf(ctx context.Context, err error) *slog.Logger {
	if err == nil {
		return noop.NewNoop()
	}

	return FromContextWithErr(ctx, err)
}

func appendErr(l *slog.Logger, err error) *slog.Logger {
	var stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if errors.As(err, &stackTracer) {
		l = l.With("stack", stackTracer.StackTrace())
	}

	return l.With("error", err.Error())
}

func convertLevel(level Level) slog.Level {
	switch level {
	case INFO:
		return slog.LevelInfo
	case ERROR:
		return slog.LevelError
	case WARN:
		return slog.LevelWarn
	case DEBUG:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}
