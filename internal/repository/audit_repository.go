package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

// AuditRepository appends and reads attendance audit entries. Entries are never updated or deleted.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = types.JSONText(`{}`)
	}
	const query = `INSERT INTO attendance_audit_logs (id, action, record_id, user_id, user_role, metadata, created_at)
VALUES (:id, :action, :record_id, :user_id, :user_role, :metadata, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// ListByRecord returns entries for a record newest first, bounded by limit.
func (r *AuditRepository) ListByRecord(ctx context.Context, recordID string, limit int) ([]models.AuditEntry, error) {
	const query = `SELECT id, action, record_id, user_id, user_role, metadata, created_at
FROM attendance_audit_logs
WHERE record_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, recordID, limit); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
