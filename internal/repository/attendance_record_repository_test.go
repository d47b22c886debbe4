package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var recordColumns = []string{"id", "class_id", "class_name", "date", "lecture_id", "lecture_title", "students", "submitted_by", "submitted_at",
	"is_locked", "locked_at", "locked_by", "version", "created_at", "updated_at"}

func recordRow(rows *sqlmock.Rows, id string, version int, locked bool) *sqlmock.Rows {
	at := time.Date(2026, 1, 9, 7, 30, 0, 0, time.UTC)
	students := `[{"student_id":"s1","student_name":"Ani","student_id_number":"1001","status":"present","marked_at":"2026-01-09T07:30:00Z","marked_by":"t1"}]`
	return rows.AddRow(id, "class-1", "X IPA 1", time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), nil, nil, []byte(students), "t1", at,
		locked, nil, nil, version, at, at)
}

func TestAttendanceRecordRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AttendanceRecord{
		ClassID:     "class-1",
		ClassName:   "X IPA 1",
		Date:        time.Date(2026, 1, 9, 15, 0, 0, 0, time.UTC),
		Students:    models.AttendanceEntries{{StudentID: "s1", Status: models.AttendanceStatusPresent}},
		SubmittedBy: "t1",
	}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), record.Date)
	assert.Equal(t, record.CreatedAt, record.SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &models.AttendanceRecord{ClassID: "class-1", Date: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestAttendanceRecordRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestAttendanceRecordRepositoryFindByIDDecodesStudents(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), "rec-1", 3, false))

	record, err := repo.FindByID(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 3, record.Version)
	require.Len(t, record.Students, 1)
	assert.Equal(t, models.AttendanceStatusPresent, record.Students[0].Status)
	assert.Equal(t, "1001", record.Students[0].StudentIDNumber)
}

func TestAttendanceRecordRepositoryFindByKeyWholeDay(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	day := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE class_id = $1 AND date = $2 AND COALESCE(lecture_id, '') = $3")).
		WithArgs("class-1", day, "").
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), "rec-1", 1, false))

	record, err := repo.FindByKey(context.Background(), "class-1", day.Add(10*time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositoryUpdateIfVersion(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	day := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $4 AND version = $5 AND is_locked = FALSE")).
		WithArgs(day, sqlmock.AnyArg(), updatedAt, "rec-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.AttendanceRecord{ID: "rec-1", Date: day, Version: 3, UpdatedAt: updatedAt,
		Students: models.AttendanceEntries{{StudentID: "s1", Status: models.AttendanceStatusLate}}}
	require.NoError(t, repo.UpdateIfVersion(context.Background(), record, 3))
	assert.Equal(t, 4, record.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositoryUpdateIfVersionConflict(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectExec("UPDATE attendance_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	record := &models.AttendanceRecord{ID: "rec-1", Date: time.Now(), Version: 2}
	err := repo.UpdateIfVersion(context.Background(), record, 2)
	assert.ErrorIs(t, err, ErrWriteConflict)
	assert.Equal(t, 2, record.Version)
}

func TestAttendanceRecordRepositoryUpdateIfVersionDuplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectExec("UPDATE attendance_records").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.UpdateIfVersion(context.Background(), &models.AttendanceRecord{ID: "rec-1", Date: time.Now()}, 1)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestAttendanceRecordRepositoryDeleteIfVersion(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records WHERE id = $1 AND version = $2 AND is_locked = FALSE")).
		WithArgs("rec-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records")).
		WithArgs("rec-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteIfVersion(context.Background(), "rec-1", 1))
	assert.ErrorIs(t, repo.DeleteIfVersion(context.Background(), "rec-1", 1), ErrWriteConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositorySetLock(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	at := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SET is_locked = $1, locked_at = $2, locked_by = $3, updated_at = $4")).
		WithArgs(true, sqlmock.AnyArg(), sqlmock.AnyArg(), at, "rec-1").
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), "rec-1", 2, true))

	admin := "admin-1"
	record, err := repo.SetLock(context.Background(), "rec-1", true, &admin, at)
	require.NoError(t, err)
	assert.True(t, record.IsLocked)
	assert.Equal(t, 2, record.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRecordRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRecordRepository(db)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND class_id = $1 AND students @> $2::jsonb AND date >= $3 AND date <= $4 ORDER BY date ASC, created_at ASC")).
		WithArgs("class-1", `[{"student_id":"s1"}]`, from, to).
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), "rec-1", 1, false))

	records, err := repo.List(context.Background(), models.AttendanceRecordFilter{
		ClassID:   "class-1",
		StudentID: "s1",
		DateFrom:  &from,
		DateTo:    &to,
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
