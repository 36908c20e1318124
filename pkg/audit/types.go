package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeBatchCreate    EventType = "billing.batch_create"
	EventTypeBatchView      EventType = "billing.batch_view"
	EventTypeSEPAExport     EventType = "billing.sepa_export"
	EventTypeSettingsUpdate EventType = "config.sepa_settings_update"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	// EventStatusRejected marks a user-correctable failure such as a conflict or invalid input
	EventStatusRejected EventStatus = "rejected"
	EventStatusFailure  EventStatus = "failure"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeBatch        ResourceType = "payment_batch"
	ResourceTypeOrganization ResourceType = "organization"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is the caller identity forwarded by the gateway
	Actor          string     `json:"actor,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	OrganizationID *uuid.UUID
	EventTypes     []EventType
	Status         *EventStatus
	StartTime      *time.Time
	EndTime        *time.Time
	ResourceID     string

	Limit int
}
