package service

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Value string `json:"value,omitempty"`
}

func registerAttendanceValidations(v *validator.Validate) {
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return normaliseStatus(fl.Field().String()).Valid()
	})
}

func normaliseStatus(raw string) models.AttendanceStatus {
	return models.AttendanceStatus(strings.ToLower(strings.TrimSpace(raw)))
}

func validationError(err error, message string) *appErrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
	}
	wrapped := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	wrapped.Details = details
	return wrapped
}

func invalidField(field, rule, value, message string) *appErrors.Error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, message), []FieldError{{Field: field, Rule: rule, Value: value}})
}

// parseBusinessDate accepts YYYY-MM-DD only and rejects dates after today (UTC).
func parseBusinessDate(field, raw string, now time.Time) (time.Time, error) {
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, invalidField(field, "date_format", raw, "date must use YYYY-MM-DD")
	}
	if date.After(models.TruncateDate(now)) {
		return time.Time{}, invalidField(field, "not_future", raw, "date cannot be in the future")
	}
	return date, nil
}

// parseDateRange parses optional YYYY-MM-DD bounds. Future bounds are allowed for reads.
func parseDateRange(start, end string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if start != "" {
		d, err := time.Parse(models.DateLayout, start)
		if err != nil {
			return nil, nil, invalidField("startDate", "date_format", start, "startDate must use YYYY-MM-DD")
		}
		from = &d
	}
	if end != "" {
		d, err := time.Parse(models.DateLayout, end)
		if err != nil {
			return nil, nil, invalidField("endDate", "date_format", end, "endDate must use YYYY-MM-DD")
		}
		to = &d
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, invalidField("startDate", "before_end", start, "startDate must not be after endDate")
	}
	return from, to, nil
}

// checkStudentInputs enforces the per-record limits and rejects a student listed twice.
func checkStudentInputs(students []dto.AttendanceStudentInput, maxStudents, maxRemarks int) error {
	if len(students) == 0 {
		return invalidField("students", "min", "", "at least one student is required")
	}
	if maxStudents > 0 && len(students) > maxStudents {
		return invalidField("students", "max", "", "too many students in one record")
	}
	seen := make(map[string]struct{}, len(students))
	for _, s := range students {
		id := strings.TrimSpace(s.StudentID)
		if _, dup := seen[id]; dup {
			return invalidField("students.student_id", "unique", id, "student listed more than once")
		}
		seen[id] = struct{}{}
		if s.Remarks != nil && maxRemarks > 0 && utf8.RuneCountInString(*s.Remarks) > maxRemarks {
			return invalidField("students.remarks", "max", id, "remarks too long")
		}
	}
	return nil
}

func studentIDs(students []dto.AttendanceStudentInput) []string {
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, strings.TrimSpace(s.StudentID))
	}
	return ids
}
