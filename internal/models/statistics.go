package models

// AttendanceTrend classifies how a student's attendance evolves over the series.
type AttendanceTrend string

const (
	TrendImproving AttendanceTrend = "improving"
	TrendDeclining AttendanceTrend = "declining"
	TrendStable    AttendanceTrend = "stable"
)

// AttendanceCounts aggregates statuses over a set of entries.
type AttendanceCounts struct {
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	Excused        int     `json:"excused"`
	Total          int     `json:"total"`
	TotalDays      int     `json:"total_days"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// Add counts one status occurrence.
func (c *AttendanceCounts) Add(status AttendanceStatus) {
	switch status {
	case AttendanceStatusPresent:
		c.Present++
	case AttendanceStatusAbsent:
		c.Absent++
	case AttendanceStatusLate:
		c.Late++
	case AttendanceStatusExcused:
		c.Excused++
	default:
		return
	}
	c.Total++
}

// StudentStatistics is the per-student breakdown within a class.
type StudentStatistics struct {
	StudentID       string          `json:"student_id"`
	StudentName     string          `json:"student_name"`
	StudentIDNumber string          `json:"student_id_number"`
	AttendanceCounts
	Trend AttendanceTrend `json:"trend"`
}

// DailyStatistics holds counts for a single calendar date.
type DailyStatistics struct {
	Date string `json:"date"`
	AttendanceCounts
}

// ClassStatistics is the aggregate view returned for a class over a date range.
type ClassStatistics struct {
	ClassID   string              `json:"class_id"`
	ClassName string              `json:"class_name"`
	DateFrom  *string             `json:"date_from,omitempty"`
	DateTo    *string             `json:"date_to,omitempty"`
	Overall   AttendanceCounts    `json:"overall"`
	Students  []StudentStatistics `json:"students"`
	Daily     []DailyStatistics   `json:"daily"`
}

// StudentHistoryItem is one flattened status for a student on a date.
type StudentHistoryItem struct {
	RecordID     string           `json:"record_id"`
	Date         string           `json:"date"`
	ClassID      string           `json:"class_id"`
	ClassName    string           `json:"class_name"`
	LectureID    *string          `json:"lecture_id,omitempty"`
	LectureTitle *string          `json:"lecture_title,omitempty"`
	Status       AttendanceStatus `json:"status"`
	Remarks      *string          `json:"remarks,omitempty"`
}

// StudentHistory is a student's attendance across records plus its summary.
type StudentHistory struct {
	StudentID   string               `json:"student_id"`
	StudentName string               `json:"student_name"`
	ClassID     *string              `json:"class_id,omitempty"`
	DateFrom    *string              `json:"date_from,omitempty"`
	DateTo      *string              `json:"date_to,omitempty"`
	History     []StudentHistoryItem `json:"history"`
	Summary     AttendanceCounts     `json:"summary"`
	Trend       AttendanceTrend      `json:"trend"`
}
