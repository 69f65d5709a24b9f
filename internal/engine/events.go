package engine

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/database"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

// auditedColumnsOmitted never reach the audit log.
var auditedColumnsOmitted = []string{"password_hash"}

// auditEvent converts a store change into an audit event.
func auditEvent(ctx context.Context, change store.Change) database.AuditEvent {
	event := database.AuditEvent{
		Target:    change.Table,
		Action:    string(change.Kind),
		RecordKey: change.Key,
		Actor:     store.ActorFrom(ctx),
		EventTime: change.At,
	}
	if len(change.Fields) > 0 {
		fields := lo.OmitByKeys(change.Fields, auditedColumnsOmitted)
		if details, err := json.Marshal(fields); err == nil {
			event.Details = string(details)
		}
	}
	return event
}

// recordAudit is a store observer writing every change to the audit log.
func (e *Engine) recordAudit(ctx context.Context, change store.Change) {
	if err := e.db.CreateAuditEvent(context.WithoutCancel(ctx), auditEvent(ctx, change)); err != nil {
		log.Warn("failed to record audit event", "table", change.Table, "error", err)
	}
}
