package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the only accepted wire format for attendance dates.
const DateLayout = "2006-01-02"

// AttendanceStatus represents the status of a student within a record.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceEntry is a point-in-time snapshot of one student's status within a record.
type AttendanceEntry struct {
	StudentID       string           `json:"student_id"`
	StudentName     string           `json:"student_name"`
	StudentIDNumber string           `json:"student_id_number"`
	Status          AttendanceStatus `json:"status"`
	Remarks         *string          `json:"remarks,omitempty"`
	MarkedAt        time.Time        `json:"marked_at"`
	MarkedBy        string           `json:"marked_by"`
}

// AttendanceEntries is the ordered student list persisted as a JSONB document.
type AttendanceEntries []AttendanceEntry

// Value implements driver.Valuer.
func (e AttendanceEntries) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal attendance entries: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (e *AttendanceEntries) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan attendance entries: unsupported type %T", src)
	}
	var entries []AttendanceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("unmarshal attendance entries: %w", err)
	}
	*e = entries
	return nil
}

// Find returns the entry for a student if present.
func (e AttendanceEntries) Find(studentID string) (AttendanceEntry, bool) {
	for _, entry := range e {
		if entry.StudentID == studentID {
			return entry, true
		}
	}
	return AttendanceEntry{}, false
}

// AttendanceRecord is one attendance submission for a class on a date, optionally scoped to a lecture.
type AttendanceRecord struct {
	ID           string            `db:"id" json:"id"`
	ClassID      string            `db:"class_id" json:"class_id"`
	ClassName    string            `db:"class_name" json:"class_name"`
	Date         time.Time         `db:"date" json:"date"`
	LectureID    *string           `db:"lecture_id" json:"lecture_id,omitempty"`
	LectureTitle *string           `db:"lecture_title" json:"lecture_title,omitempty"`
	Students     AttendanceEntries `db:"students" json:"students"`
	SubmittedBy  string            `db:"submitted_by" json:"submitted_by"`
	SubmittedAt  time.Time         `db:"submitted_at" json:"submitted_at"`
	IsLocked     bool              `db:"is_locked" json:"is_locked"`
	LockedAt     *time.Time        `db:"locked_at" json:"locked_at,omitempty"`
	LockedBy     *string           `db:"locked_by" json:"locked_by,omitempty"`
	Version      int               `db:"version" json:"version"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// DateString renders the business date in wire format.
func (r *AttendanceRecord) DateString() string {
	return r.Date.Format(DateLayout)
}

// MarshalJSON renders the business date as YYYY-MM-DD.
func (r AttendanceRecord) MarshalJSON() ([]byte, error) {
	type alias AttendanceRecord
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(r), Date: r.Date.Format(DateLayout)})
}

// AttendanceRecordFilter scopes record scans used by listing and statistics.
type AttendanceRecordFilter struct {
	ClassID   string
	StudentID string
	LectureID *string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// TruncateDate drops the time component, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
