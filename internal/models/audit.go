package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction enumerates the attendance mutations written to the audit trail.
type AuditAction string

const (
	AuditActionCreate AuditAction = "ATTENDANCE_CREATE"
	AuditActionUpdate AuditAction = "ATTENDANCE_UPDATE"
	AuditActionDelete AuditAction = "ATTENDANCE_DELETE"
	AuditActionLock   AuditAction = "ATTENDANCE_LOCK"
	AuditActionUnlock AuditAction = "ATTENDANCE_UNLOCK"
)

// AuditEntry is an append-only record of who did what to which attendance record.
type AuditEntry struct {
	ID        string         `db:"id" json:"id"`
	Action    AuditAction    `db:"action" json:"action"`
	RecordID  string         `db:"record_id" json:"record_id"`
	UserID    string         `db:"user_id" json:"user_id"`
	UserRole  UserRole       `db:"user_role" json:"user_role"`
	Metadata  types.JSONText `db:"metadata" json:"metadata"`
	Timestamp time.Time      `db:"created_at" json:"timestamp"`
}
