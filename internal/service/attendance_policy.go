package service

import (
	"time"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
)

// PolicyReason names the rule that denied a mutation.
type PolicyReason string

const (
	ReasonNone                 PolicyReason = ""
	ReasonLocked               PolicyReason = "RECORD_LOCKED"
	ReasonUpdateWindowExpired  PolicyReason = "UPDATE_WINDOW_EXPIRED"
	ReasonDeleteWindowExpired  PolicyReason = "DELETE_WINDOW_EXPIRED"
	ReasonNotSubmitter         PolicyReason = "NOT_SUBMITTER"
	ReasonTeacherWindowExpired PolicyReason = "TEACHER_DELETE_WINDOW_EXPIRED"
	ReasonRoleNotPermitted     PolicyReason = "ROLE_NOT_PERMITTED"
)

// PolicyDecision is the outcome of a composite policy check.
type PolicyDecision struct {
	Allowed bool
	Reason  PolicyReason
}

func allow() PolicyDecision { return PolicyDecision{Allowed: true} }

func deny(reason PolicyReason) PolicyDecision { return PolicyDecision{Reason: reason} }

// AttendancePolicy decides whether a record may be mutated. It holds no state beyond its thresholds.
//
// The update and delete windows are measured from the record's business date in whole UTC days.
// The teacher delete window is measured from the wall-clock submission time.
type AttendancePolicy struct {
	UpdateWindowDays    int
	DeleteWindowDays    int
	TeacherDeleteWindow time.Duration
}

// NewAttendancePolicy builds a policy from configuration, falling back to the stock windows.
func NewAttendancePolicy(cfg config.AttendanceConfig) AttendancePolicy {
	defaults := config.DefaultAttendanceConfig()
	if cfg.UpdateWindowDays <= 0 {
		cfg.UpdateWindowDays = defaults.UpdateWindowDays
	}
	if cfg.DeleteWindowDays <= 0 {
		cfg.DeleteWindowDays = defaults.DeleteWindowDays
	}
	if cfg.TeacherDeleteWindowHours <= 0 {
		cfg.TeacherDeleteWindowHours = defaults.TeacherDeleteWindowHours
	}
	return AttendancePolicy{
		UpdateWindowDays:    cfg.UpdateWindowDays,
		DeleteWindowDays:    cfg.DeleteWindowDays,
		TeacherDeleteWindow: time.Duration(cfg.TeacherDeleteWindowHours) * time.Hour,
	}
}

// IsLocked reports whether the administrative lock is set.
func (p AttendancePolicy) IsLocked(record *models.AttendanceRecord) bool {
	return record.IsLocked
}

// WithinUpdateWindow reports whether the business date is recent enough for an update.
func (p AttendancePolicy) WithinUpdateWindow(record *models.AttendanceRecord, now time.Time) bool {
	return p.DateWithinUpdateWindow(record.Date, now)
}

// DateWithinUpdateWindow applies the update window to a candidate business date.
func (p AttendancePolicy) DateWithinUpdateWindow(date, now time.Time) bool {
	return ageInDays(date, now) <= p.UpdateWindowDays
}

// WithinDeleteWindow reports whether the business date is recent enough for a delete.
func (p AttendancePolicy) WithinDeleteWindow(record *models.AttendanceRecord, now time.Time) bool {
	return ageInDays(record.Date, now) <= p.DeleteWindowDays
}

// ActorCanUpdate allows administrators and the original submitter.
func (p AttendancePolicy) ActorCanUpdate(record *models.AttendanceRecord, actor models.Actor) bool {
	return actor.Role.IsAdministrator() || (actor.ID != "" && actor.ID == record.SubmittedBy)
}

// ActorCanDelete allows administrators, or the submitting teacher strictly before submittedAt plus the teacher window.
func (p AttendancePolicy) ActorCanDelete(record *models.AttendanceRecord, actor models.Actor, now time.Time) bool {
	return p.deleteActorReason(record, actor, now) == ReasonNone
}

func (p AttendancePolicy) deleteActorReason(record *models.AttendanceRecord, actor models.Actor, now time.Time) PolicyReason {
	switch {
	case actor.Role.IsAdministrator():
		return ReasonNone
	case actor.Role != models.RoleTeacher:
		return ReasonRoleNotPermitted
	case actor.ID == "" || actor.ID != record.SubmittedBy:
		return ReasonNotSubmitter
	case !now.Before(record.SubmittedAt.Add(p.TeacherDeleteWindow)):
		return ReasonTeacherWindowExpired
	default:
		return ReasonNone
	}
}

// CanUpdate combines the lock, update window and ownership rules in that order.
func (p AttendancePolicy) CanUpdate(record *models.AttendanceRecord, actor models.Actor, now time.Time) PolicyDecision {
	if p.IsLocked(record) {
		return deny(ReasonLocked)
	}
	if !p.WithinUpdateWindow(record, now) {
		return deny(ReasonUpdateWindowExpired)
	}
	if !p.ActorCanUpdate(record, actor) {
		return deny(ReasonNotSubmitter)
	}
	return allow()
}

// CanDelete combines the lock, delete window and role rules in that order.
func (p AttendancePolicy) CanDelete(record *models.AttendanceRecord, actor models.Actor, now time.Time) PolicyDecision {
	if p.IsLocked(record) {
		return deny(ReasonLocked)
	}
	if !p.WithinDeleteWindow(record, now) {
		return deny(ReasonDeleteWindowExpired)
	}
	if reason := p.deleteActorReason(record, actor, now); reason != ReasonNone {
		return deny(reason)
	}
	return allow()
}

// ageInDays counts whole calendar days between the business date and now, both in UTC.
// A business date in the future yields a negative age.
func ageInDays(date, now time.Time) int {
	return int(models.TruncateDate(now).Sub(models.TruncateDate(date)).Hours() / 24)
}
