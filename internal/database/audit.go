package database

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// AuditEvent records a mutation of a CSV table.
type AuditEvent struct {
	gorm.Model
	Target    string `gorm:"not null;index"` // table name
	Action    string `gorm:"not null"`
	RecordKey string `gorm:"index"`
	// Actor is empty for changes made by background jobs.
	Actor     string
	Details   string
	EventTime time.Time `gorm:"not null;index"`
}

// AuditDB defines the audit log operations.
type AuditDB interface {
	CreateAuditEvent(ctx context.Context, event AuditEvent) error
	GetAuditEvents(ctx context.Context, table string, page, pageSize int) ([]AuditEvent, int64, error)
	PruneAuditEvents(ctx context.Context, before time.Time) (int64, error)
}

// CreateAuditEvent stores a new audit event.
func (c *Client) CreateAuditEvent(ctx context.Context, event AuditEvent) error {
	if event.EventTime.IsZero() {
		event.EventTime = time.Now()
	}

	result := c.db.WithContext(ctx).Create(&event)
	if result.Error != nil {
		log.Error("failed to create audit event", "error", result.Error)
		return result.Error
	}
	return nil
}

// GetAuditEvents returns a page of audit events, newest first. An empty table matches all tables.
func (c *Client) GetAuditEvents(ctx context.Context, table string, page, pageSize int) ([]AuditEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	query := func() *gorm.DB {
		q := c.db.WithContext(ctx).Model(&AuditEvent{})
		if table != "" {
			q = q.Where("target = ?", table)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		log.Error("failed to count audit events", "error", err)
		return nil, 0, err
	}

	var events []AuditEvent
	if err := query().Order("event_time DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&events).Error; err != nil {
		log.Error("failed to get audit events", "error", err)
		return nil, 0, err
	}
	return events, total, nil
}

// PruneAuditEvents permanently deletes events older than before.
func (c *Client) PruneAuditEvents(ctx context.Context, before time.Time) (int64, error) {
	result := c.db.WithContext(ctx).Unscoped().Where("event_time < ?", before).Delete(&AuditEvent{})
	if result.Error != nil {
		log.Error("failed to prune audit events", "error", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
