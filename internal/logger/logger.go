// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Log is the global logger instance.
var Log = slog.Default()

// Init builds the global logger and installs it as slog's default.
// Development: text format at debug level.
// Production: JSON format at info level.
// With a Sentry DSN, error records are also sent to Sentry.
func Init(dev bool, sentryDSN string) *slog.Logger {
	Log = New(os.Stdout, dev, sentryDSN)
	slog.SetDefault(Log)
	return Log
}

// New builds a logger writing to w.
func New(w io.Writer, dev bool, sentryDSN string) *slog.Logger {
	var handlers []slog.Handler
	if dev {
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	if sentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDSN,
			TracesSampleRate: 1.0,
		})
		if err == nil {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
		} else {
			slog.New(handlers[0]).Warn("sentry disabled", "error", err)
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// Flush waits for buffered Sentry events. Safe to call without Sentry.
func Flush() {
	sentry.Flush(2 * time.Second)
}
