package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// LogLevel is the minimum severity a Logger emits
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel

	silentLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

var slogLevels = map[LogLevel]slog.Level{
	DebugLevel:  slog.LevelDebug,
	InfoLevel:   slog.LevelInfo,
	WarnLevel:   slog.LevelWarn,
	ErrorLevel:  slog.LevelError,
	silentLevel: slog.LevelError + 4,
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLogLevel reads a level from configuration. Unknown values mean info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

// Logger writes JSON lines through slog. Derived loggers share the handler.
type Logger struct {
	sl *slog.Logger
}

// NewLogger creates a JSON logger writing to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	lvl, ok := slogLevels[level]
	if !ok {
		lvl = slog.LevelInfo
	}
	return &Logger{sl: slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: lvl}))}
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return NewLogger(silentLevel, io.Discard)
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...)}
}

// WithField returns a logger that adds key=value to every entry
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields returns a logger that adds every pair of fields to every entry
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// WithError records err as the "error" field. A nil error returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithOrganization tags entries with the organization being billed
func (l *Logger) WithOrganization(orgID uuid.UUID) *Logger {
	return l.with("organization_id", orgID.String())
}

// WithBatch tags entries with a payment batch
func (l *Logger) WithBatch(batchID uuid.UUID) *Logger {
	return l.with("batch_id", batchID.String())
}

// WithOperation tags entries with the billing operation, e.g. "batch.create"
func (l *Logger) WithOperation(op string) *Logger {
	return l.with("operation", op)
}

func (l *Logger) emit(level slog.Level, msg string) {
	l.sl.Log(context.Background(), level, msg)
}

func (l *Logger) Debug(message string) { l.emit(slog.LevelDebug, message) }
func (l *Logger) Info(message string)  { l.emit(slog.LevelInfo, message) }
func (l *Logger) Warn(message string)  { l.emit(slog.LevelWarn, message) }
func (l *Logger) Error(message string) { l.emit(slog.LevelError, message) }

// Infof has the printf signature so it can be handed to maxprocs.Logger
func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.emit(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(slog.LevelError, fmt.Sprintf(format, args...))
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
	loggerKey
)

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithRequestID stores the request id in ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request id stored in ctx, or ""
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithActor stores the caller identity recorded in audit events
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the caller identity stored in ctx, or ""
func GetActor(ctx context.Context) string {
	return stringValue(ctx, actorKey)
}

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the logger stored in ctx, or a stdout info logger
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the request logger: the stored logger plus request_id, actor and,
// under a recording span, trace_id and span_id.
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	var args []any
	if id := GetRequestID(ctx); id != "" {
		args = append(args, "request_id", id)
	}
	if actor := GetActor(ctx); actor != "" {
		args = append(args, "actor", actor)
	}
	if len(args) > 0 {
		logger = logger.with(args...)
	}
	return UpdateLoggerWithTraceContext(ctx, logger)
}
