// Package logging provides the request-scoped logger used by the HTTP
// boundary: trace and user identifiers travel in the context and every
// gateway log line carries them.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// TraceIDKey holds the request trace id in a context.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey holds the authenticated user id in a context.
	UserIDKey contextKey = "user_id"
	// RoleKey holds the authenticated role in a context.
	RoleKey contextKey = "role"
)

// NewTraceID returns a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID attaches a trace id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID extracts the trace id from the context, if any.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// WithUserID attaches the authenticated user id to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID extracts the authenticated user id from the context, if any.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// WithRole attaches the authenticated role to the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// GetRole extracts the authenticated role from the context, if any.
func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}

// Logger is a zerolog-backed logger for the HTTP boundary.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a gateway logger writing JSON to the given writer.
func NewLogger(service string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	zl := zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Logger()
	return &Logger{zl: zl}
}

// WithContext binds the trace id, user id and role from the context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zl := l.zl
	if traceID := GetTraceID(ctx); traceID != "" {
		zl = zl.With().Str("trace_id", traceID).Logger()
	}
	if userID := GetUserID(ctx); userID != "" {
		zl = zl.With().Str("user_id", userID).Logger()
	}
	if role := GetRole(ctx); role != "" {
		zl = zl.With().Str("role", role).Logger()
	}
	return &Logger{zl: zl}
}

// WithError binds an error.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// WithFields binds arbitrary fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// LogRequest emits the access log line for a completed request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	l.WithContext(ctx).zl.Info().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration).
		Msg("request")
}

// LogSecurityEvent emits a security-relevant event (auth failure, rate limit
// trip) with its context.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).zl.Warn().
		Str("event", event).
		Fields(fields).
		Msg("security event")
}

// LogUnhandled records an unhandled error with the full request context.
// Validation and auth errors never reach this path.
func (l *Logger) LogUnhandled(ctx context.Context, err error, fields map[string]interface{}) {
	l.WithContext(ctx).zl.Error().
		Err(err).
		Fields(fields).
		Msg("unhandled error")
}
