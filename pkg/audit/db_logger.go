package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const auditTableDDL = `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		actor VARCHAR(255),
		organization_id UUID,
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		request_id VARCHAR(100),
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_org_time ON audit_logs(organization_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
`

// eventColumns is the column order shared by inserts and scans
const eventColumns = `timestamp, event_type, status, actor, organization_id,
		resource_type, resource_id, request_id, message, error_message, metadata`

// DBLogger stores audit events in the audit_logs table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger returns a logger writing through db
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// EnsureTable creates audit_logs and its indexes when missing
func (l *DBLogger) EnsureTable(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, auditTableDDL); err != nil {
		return fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return nil
}

// Log inserts event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	// nil, not an empty slice, so absent metadata is stored as NULL
	var metadata interface{}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = raw
	}

	query := `INSERT INTO audit_logs (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status),
		optional(event.Actor), event.OrganizationID,
		optional(string(event.ResourceType)), optional(event.ResourceID), optional(event.RequestID),
		optional(event.Message), optional(event.ErrorMessage), metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// conditions accumulates AND-ed predicates with numbered placeholders
type conditions struct {
	clauses []string
	args    []interface{}
}

// add appends a predicate; "?" in clause becomes the next placeholder
func (c *conditions) add(clause string, arg interface{}) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, strings.Replace(clause, "?", fmt.Sprintf("$%d", len(c.args)), 1))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// Search returns audit events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	var cond conditions
	if filter.OrganizationID != nil {
		cond.add("organization_id = ?", *filter.OrganizationID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}
		cond.add("event_type = ANY(?)", pq.Array(types))
	}
	if filter.Status != nil {
		cond.add("status = ?", string(*filter.Status))
	}
	if filter.StartTime != nil {
		cond.add("timestamp >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		cond.add("timestamp <= ?", *filter.EndTime)
	}
	if filter.ResourceID != "" {
		cond.add("resource_id = ?", filter.ResourceID)
	}

	query := `SELECT id, ` + eventColumns + ` FROM audit_logs` + cond.where() +
		` ORDER BY timestamp DESC, id DESC`
	args := cond.args
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*AuditEvent, error) {
	event := &AuditEvent{}
	var (
		actor, resourceType, resourceID sql.NullString
		requestID, message, errMessage  sql.NullString
		orgID                           uuid.NullUUID
		metadata                        []byte
	)
	if err := rows.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status, &actor, &orgID,
		&resourceType, &resourceID, &requestID, &message, &errMessage, &metadata,
	); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	event.Actor = actor.String
	event.ResourceType = ResourceType(resourceType.String)
	event.ResourceID = resourceID.String
	event.RequestID = requestID.String
	event.Message = message.String
	event.ErrorMessage = errMessage.String
	if orgID.Valid {
		event.OrganizationID = &orgID.UUID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for audit log %d: %w", event.ID, err)
		}
	}
	return event, nil
}

// Close is a no-op; the connection belongs to the caller
func (l *DBLogger) Close() error {
	return nil
}

func optional(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
