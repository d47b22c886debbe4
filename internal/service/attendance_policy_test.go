package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
)

var (
	policyTeacher = models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	policyOther   = models.Actor{ID: "teacher-2", Role: models.RoleTeacher}
	policyAdmin   = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	policySuper   = models.Actor{ID: "root", Role: models.RoleSuperAdmin}
	policyStudent = models.Actor{ID: "teacher-1", Role: models.RoleStudent}
)

func policyRecord(date string, submittedAt time.Time) *models.AttendanceRecord {
	d, _ := time.Parse(models.DateLayout, date)
	return &models.AttendanceRecord{ID: "rec-1", Date: d, SubmittedBy: "teacher-1", SubmittedAt: submittedAt}
}

func TestNewAttendancePolicyDefaults(t *testing.T) {
	p := NewAttendancePolicy(config.AttendanceConfig{})
	assert.Equal(t, 30, p.UpdateWindowDays)
	assert.Equal(t, 7, p.DeleteWindowDays)
	assert.Equal(t, 24*time.Hour, p.TeacherDeleteWindow)
}

func TestLockOverridesEveryRole(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	rec := policyRecord("2026-01-10", now.Add(-time.Hour))
	rec.IsLocked = true

	for _, actor := range []models.Actor{policyTeacher, policyAdmin, policySuper} {
		assert.Equal(t, deny(ReasonLocked), p.CanUpdate(rec, actor, now), actor.Role)
		assert.Equal(t, deny(ReasonLocked), p.CanDelete(rec, actor, now), actor.Role)
	}
}

func TestUpdateWindowUsesBusinessDate(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	rec := policyRecord("2026-01-10", time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC))

	day30 := time.Date(2026, 2, 9, 23, 59, 0, 0, time.UTC)
	day31 := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	assert.True(t, p.CanUpdate(rec, policyTeacher, day30).Allowed)
	assert.Equal(t, deny(ReasonUpdateWindowExpired), p.CanUpdate(rec, policyTeacher, day31))
}

func TestDateWithinUpdateWindow(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	now := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

	assert.True(t, p.DateWithinUpdateWindow(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), now))
	assert.False(t, p.DateWithinUpdateWindow(time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), now))
	assert.False(t, p.DateWithinUpdateWindow(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), now))
}

func TestAdministratorsStillBoundByAgeWindows(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	rec := policyRecord("2026-01-10", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for _, actor := range []models.Actor{policyAdmin, policySuper} {
		assert.Equal(t, deny(ReasonUpdateWindowExpired), p.CanUpdate(rec, actor, now))
		assert.Equal(t, deny(ReasonDeleteWindowExpired), p.CanDelete(rec, actor, now))
	}
}

func TestUpdateOwnership(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	now := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	rec := policyRecord("2026-01-10", now.Add(-48*time.Hour))

	assert.True(t, p.CanUpdate(rec, policyTeacher, now).Allowed)
	assert.True(t, p.CanUpdate(rec, policyAdmin, now).Allowed)
	assert.Equal(t, deny(ReasonNotSubmitter), p.CanUpdate(rec, policyOther, now))
}

func TestTeacherDeleteWindowBoundary(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	submitted := time.Date(2026, 1, 10, 7, 30, 0, 0, time.UTC)
	rec := policyRecord("2026-01-10", submitted)

	justBefore := submitted.Add(24*time.Hour - time.Nanosecond)
	exactly := submitted.Add(24 * time.Hour)

	assert.True(t, p.CanDelete(rec, policyTeacher, justBefore).Allowed)
	assert.Equal(t, deny(ReasonTeacherWindowExpired), p.CanDelete(rec, policyTeacher, exactly))
	assert.True(t, p.WithinDeleteWindow(rec, exactly), "date window still open")
	assert.True(t, p.CanDelete(rec, policyAdmin, exactly).Allowed, "administrators skip the 24h rule")
}

func TestTeacherDeleteWindowIgnoresBusinessDate(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	// Backfilled record: business date five days ago, submitted an hour ago.
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	rec := policyRecord("2026-01-10", now.Add(-time.Hour))

	assert.True(t, p.CanDelete(rec, policyTeacher, now).Allowed)
}

func TestDeleteRoleRules(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	rec := policyRecord("2026-01-10", now.Add(-time.Hour))

	assert.Equal(t, deny(ReasonNotSubmitter), p.CanDelete(rec, policyOther, now))
	assert.Equal(t, deny(ReasonRoleNotPermitted), p.CanDelete(rec, policyStudent, now))
	assert.False(t, p.ActorCanDelete(rec, policyStudent, now))
}

func TestDeleteWindowBoundary(t *testing.T) {
	p := NewAttendancePolicy(config.DefaultAttendanceConfig())
	rec := policyRecord("2026-01-10", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))

	assert.True(t, p.WithinDeleteWindow(rec, time.Date(2026, 1, 17, 23, 0, 0, 0, time.UTC)))
	assert.False(t, p.WithinDeleteWindow(rec, time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC)))
}

func TestAgeInDays(t *testing.T) {
	date := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, ageInDays(date, time.Date(2026, 1, 10, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 1, ageInDays(date, time.Date(2026, 1, 11, 0, 0, 1, 0, time.UTC)))
	assert.Equal(t, -1, ageInDays(date, time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC)))
}
