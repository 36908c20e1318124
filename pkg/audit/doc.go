// Package audit records billing operations for compliance and support.
//
// Every batch creation and SEPA export attempt produces one event with its outcome:
// success, rejected (a user-correctable failure such as a conflict) or failure. Events
// carry the organization, the actor forwarded by the gateway and the request id.
//
// Handlers record through the logger stored in the request context:
//
//	ctx = audit.WithLogger(ctx, dbLogger)
//
//	event := audit.NewEvent(ctx, audit.EventTypeBatchCreate, orgID, audit.EventStatusSuccess)
//	event.ResourceType = audit.ResourceTypeBatch
//	event.ResourceID = batch.ID.String()
//	audit.Record(ctx, event)
//
// Record never fails the caller. A failed write is logged as a warning.
//
// DBLogger persists events in the audit_logs table; Search lists them per organization.
package audit
