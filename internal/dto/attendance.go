package dto

// AttendanceStudentInput is one student status inside a create or update payload.
type AttendanceStudentInput struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Remarks   *string `json:"remarks"`
}

// CreateAttendanceRequest is the payload for POST /classes/:classId/attendance.
type CreateAttendanceRequest struct {
	Date      string                   `json:"date" validate:"required"`
	LectureID *string                  `json:"lecture_id" validate:"omitempty,min=1"`
	Students  []AttendanceStudentInput `json:"students" validate:"required,min=1,dive"`
}

// UpdateAttendanceRequest replaces the date and/or the student list of a record.
// Version, when present, must equal the stored version.
type UpdateAttendanceRequest struct {
	Version  *int                     `json:"version" validate:"omitempty,min=1"`
	Date     *string                  `json:"date" validate:"omitempty"`
	Students []AttendanceStudentInput `json:"students" validate:"omitempty,min=1,dive"`
}

// LockAttendanceRequest toggles the administrative lock.
type LockAttendanceRequest struct {
	IsLocked *bool `json:"isLocked" validate:"required"`
}

// AttendanceRangeQuery carries the optional date range used by list and statistics reads.
type AttendanceRangeQuery struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

// StudentHistoryQuery narrows a student's history to a class and date range.
type StudentHistoryQuery struct {
	ClassID   string `form:"classId"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

// AuditListQuery bounds the audit trail read.
type AuditListQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1"`
}

// StatisticsExportQuery selects the export encoding.
type StatisticsExportQuery struct {
	AttendanceRangeQuery
	Format string `form:"format"`
}
