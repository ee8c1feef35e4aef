package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Setup configures the global zerolog logger.
func Setup(isLocalDev bool) {
	// Use Unix timestamps for performance and consistency
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if isLocalDev {
		// Pretty printing for local development
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// log.Ctx on a bare context falls back to the global logger.
	zerolog.DefaultContextLogger = &log.Logger
}

// EnrichContextWithLogger adds a logger to the context, carrying trace
// information when the context holds a recording span.
func EnrichContextWithLogger(ctx context.Context) context.Context {
	l := log.Ctx(ctx).With()

	span := trace.SpanFromContext(ctx)
	if sCtx := span.SpanContext(); span.IsRecording() && sCtx.HasTraceID() {
		l = l.Str("trace_id", sCtx.TraceID().String()).
			Str("span_id", sCtx.SpanID().String())
	}

	return l.Logger().WithContext(ctx)
}

// WithAttempt tags the context logger with the (user, date) an attempt is for.
func WithAttempt(ctx context.Context, userID, date string) context.Context {
	l := log.Ctx(ctx).With().
		Str("user_id", userID).
		Str("date", date).
		Logger()
	return l.WithContext(ctx)
}
