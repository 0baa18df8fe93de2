package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	TenantID uuid.UUID
	ActorID  uuid.UUID
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is the subset of a pgx pool or transaction the audit logger needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry. A zero tenant is stored as NULL for platform-level events.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var tenant *uuid.UUID
	if log.TenantID != uuid.Nil {
		tenant = &log.TenantID
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (tenant_id, actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		tenant, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
