package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clubdues/clubdues/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// NopLogger discards every event
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

// Close implements Logger
func (NopLogger) Close() error {
	return nil
}

type contextKey string

// AuditLoggerKey is the context key for the audit logger
const AuditLoggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NewEvent creates an event for an organization scoped operation, populated with the
// request id and actor found in ctx
func NewEvent(ctx context.Context, eventType EventType, orgID uuid.UUID, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       status,
		Actor:        observability.GetActor(ctx),
		RequestID:    observability.GetRequestID(ctx),
		ResourceType: ResourceTypeOrganization,
		ResourceID:   orgID.String(),
		Metadata:     make(map[string]interface{}),
	}
	if orgID != uuid.Nil {
		id := orgID
		event.OrganizationID = &id
	}
	return event
}

// Record writes the event with the logger from ctx. A failing audit write is logged and
// never propagated: audit trails must not fail the operation they describe.
func Record(ctx context.Context, event *AuditEvent) {
	if err := FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to write audit event")
	}
}
