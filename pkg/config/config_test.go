package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, DefaultAttendanceConfig(), cfg.Attendance)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5*time.Second, cfg.Audit.WriteTimeout)
	assert.False(t, cfg.Database.AutoMigrate)
}

func TestLoadAttendanceOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ATTENDANCE_UPDATE_WINDOW_DAYS", "14")
	t.Setenv("ATTENDANCE_DELETE_WINDOW_DAYS", "3")
	t.Setenv("ATTENDANCE_TEACHER_DELETE_WINDOW_HOURS", "12")
	t.Setenv("ATTENDANCE_MAX_REMARKS_LENGTH", "0")
	t.Setenv("JWT_AUDIENCE", "web, mobile ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Attendance.UpdateWindowDays)
	assert.Equal(t, 3, cfg.Attendance.DeleteWindowDays)
	assert.Equal(t, 12, cfg.Attendance.TeacherDeleteWindowHours)
	assert.Equal(t, 500, cfg.Attendance.MaxRemarksLength)
	assert.Equal(t, []string{"web", "mobile"}, cfg.JWT.Audience)
}
