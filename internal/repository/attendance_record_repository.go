package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

var (
	// ErrDuplicateKey is returned when a write collides with an existing (class, date, lecture) record.
	ErrDuplicateKey = errors.New("attendance record already exists for class, date and lecture")
	// ErrWriteConflict is returned when a compare-and-swap write matched no row.
	ErrWriteConflict = errors.New("attendance record changed since it was read")
)

const uniqueViolation = "23505"

const attendanceRecordColumns = `id, class_id, class_name, date, lecture_id, lecture_title, students, submitted_by, submitted_at,
is_locked, locked_at, locked_by, version, created_at, updated_at`

// AttendanceRecordRepository persists attendance records with optimistic concurrency.
type AttendanceRecordRepository struct {
	db *sqlx.DB
}

// NewAttendanceRecordRepository constructs the repository.
func NewAttendanceRecordRepository(db *sqlx.DB) *AttendanceRecordRepository {
	return &AttendanceRecordRepository{db: db}
}

// Create inserts a new record at version 1.
func (r *AttendanceRecordRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = record.CreatedAt
	}
	record.UpdatedAt = record.CreatedAt
	record.Version = 1
	record.Date = models.TruncateDate(record.Date)

	const query = `INSERT INTO attendance_records (id, class_id, class_name, date, lecture_id, lecture_title, students, submitted_by, submitted_at,
is_locked, locked_at, locked_by, version, created_at, updated_at)
VALUES (:id, :class_id, :class_name, :date, :lecture_id, :lecture_title, :students, :submitted_by, :submitted_at,
:is_locked, :locked_at, :locked_by, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// FindByID returns the record or sql.ErrNoRows.
func (r *AttendanceRecordRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE id = $1", attendanceRecordColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByKey returns the record for (class, date, lecture) or sql.ErrNoRows. A nil lecture matches whole-day records only.
func (r *AttendanceRecordRepository) FindByKey(ctx context.Context, classID string, date time.Time, lectureID *string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE class_id = $1 AND date = $2 AND COALESCE(lecture_id, '') = $3", attendanceRecordColumns)
	key := ""
	if lectureID != nil {
		key = *lectureID
	}
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, classID, models.TruncateDate(date), key); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateIfVersion replaces the mutable content of a record only when the stored version still equals
// expectedVersion and the record is unlocked. On success the record carries the bumped version.
func (r *AttendanceRecordRepository) UpdateIfVersion(ctx context.Context, record *models.AttendanceRecord, expectedVersion int) error {
	updatedAt := time.Now().UTC()
	if !record.UpdatedAt.IsZero() {
		updatedAt = record.UpdatedAt
	}
	const query = `UPDATE attendance_records
SET date = $1, students = $2, version = version + 1, updated_at = $3
WHERE id = $4 AND version = $5 AND is_locked = FALSE`
	result, err := r.db.ExecContext(ctx, query, models.TruncateDate(record.Date), record.Students, updatedAt, record.ID, expectedVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attendance update rows: %w", err)
	}
	if affected == 0 {
		return ErrWriteConflict
	}
	record.Version = expectedVersion + 1
	record.UpdatedAt = updatedAt
	return nil
}

// DeleteIfVersion hard-deletes a record under the same guard as UpdateIfVersion.
func (r *AttendanceRecordRepository) DeleteIfVersion(ctx context.Context, id string, expectedVersion int) error {
	const query = `DELETE FROM attendance_records WHERE id = $1 AND version = $2 AND is_locked = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attendance delete rows: %w", err)
	}
	if affected == 0 {
		return ErrWriteConflict
	}
	return nil
}

// SetLock sets or clears the administrative lock. Content version is untouched.
func (r *AttendanceRecordRepository) SetLock(ctx context.Context, id string, locked bool, lockedBy *string, at time.Time) (*models.AttendanceRecord, error) {
	var lockedAt *time.Time
	if locked {
		ts := at.UTC()
		lockedAt = &ts
	} else {
		lockedBy = nil
	}
	query := fmt.Sprintf(`UPDATE attendance_records
SET is_locked = $1, locked_at = $2, locked_by = $3, updated_at = $4
WHERE id = $5
RETURNING %s`, attendanceRecordColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, locked, lockedAt, lockedBy, at.UTC(), id); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns records matching the filter ordered by date then creation time.
func (r *AttendanceRecordRepository) List(ctx context.Context, filter models.AttendanceRecordFilter) ([]models.AttendanceRecord, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		containment, err := json.Marshal([]map[string]string{{"student_id": filter.StudentID}})
		if err != nil {
			return nil, fmt.Errorf("encode student filter: %w", err)
		}
		where = append(where, fmt.Sprintf("students @> $%d::jsonb", len(args)+1))
		args = append(args, string(containment))
	}
	if filter.LectureID != nil {
		where = append(where, fmt.Sprintf("lecture_id = $%d", len(args)+1))
		args = append(args, *filter.LectureID)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, models.TruncateDate(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, models.TruncateDate(*filter.DateTo))
	}
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE %s ORDER BY date ASC, created_at ASC",
		attendanceRecordColumns, strings.Join(where, " AND "))

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
