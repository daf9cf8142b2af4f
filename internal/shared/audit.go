package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one entry of the audit trail kept for stock, cash and order
// changes.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ErrIncompleteAudit indicates an entry without action, entity or entity id.
var ErrIncompleteAudit = errors.New("shared: audit entry requires action, entity and entity id")

// AuditLogger writes entries to audit_logs and mirrors them to the log.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger returns an AuditLogger. A nil logger disables mirroring.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return ErrIncompleteAudit
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	if _, err := l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`, entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, entry.At); err != nil {
		return err
	}
	if l.logger != nil {
		l.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.Int64("actor_id", entry.ActorID))
	}
	return nil
}
