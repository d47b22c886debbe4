package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/export"
)

const (
	trendMinPoints = 14
	trendWindow    = 7
	trendUpper     = 1.1
	trendLower     = 0.9
)

type statisticsRecordReader interface {
	List(ctx context.Context, filter models.AttendanceRecordFilter) ([]models.AttendanceRecord, error)
}

type statisticsClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type statisticsStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type statisticsMetrics interface {
	ObserveStatistics(kind string, duration time.Duration)
}

// ExportFile is a rendered statistics export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StatisticsService computes read-only attendance aggregates. Nothing is cached; each call scans the store.
type StatisticsService struct {
	records  statisticsRecordReader
	classes  statisticsClassReader
	students statisticsStudentReader
	metrics  statisticsMetrics
	logger   *zap.Logger
}

// NewStatisticsService constructs the statistics engine.
func NewStatisticsService(records statisticsRecordReader, classes statisticsClassReader, students statisticsStudentReader, metrics statisticsMetrics, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{records: records, classes: classes, students: students, metrics: metrics, logger: logger}
}

// ClassStatistics aggregates a class over the optional date range: overall, per student and per day.
func (s *StatisticsService) ClassStatistics(ctx context.Context, classID string, query dto.AttendanceRangeQuery) (*models.ClassStatistics, error) {
	defer s.observe("class", time.Now())

	from, to, err := parseDateRange(query.StartDate, query.EndDate)
	if err != nil {
		return nil, err
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}

	records, err := s.records.List(ctx, models.AttendanceRecordFilter{ClassID: classID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attendance")
	}
	sortRecords(records)

	stats := &models.ClassStatistics{
		ClassID:   class.ID,
		ClassName: class.Name,
		DateFrom:  formatOptionalDate(from),
		DateTo:    formatOptionalDate(to),
		Students:  []models.StudentStatistics{},
		Daily:     []models.DailyStatistics{},
	}

	perStudent := map[string]*models.StudentStatistics{}
	seriesByStudent := map[string][]time.Time{}
	var daily *models.DailyStatistics

	for _, record := range records {
		date := record.DateString()
		if daily == nil || daily.Date != date {
			stats.Daily = append(stats.Daily, models.DailyStatistics{Date: date})
			daily = &stats.Daily[len(stats.Daily)-1]
		}
		daily.TotalDays++
		stats.Overall.TotalDays++

		for _, entry := range record.Students {
			stats.Overall.Add(entry.Status)
			daily.Add(entry.Status)

			st, ok := perStudent[entry.StudentID]
			if !ok {
				st = &models.StudentStatistics{StudentID: entry.StudentID}
				perStudent[entry.StudentID] = st
			}
			// Records are date ordered, so the latest snapshot wins.
			st.StudentName = entry.StudentName
			st.StudentIDNumber = entry.StudentIDNumber
			st.Add(entry.Status)
			st.TotalDays++
			seriesByStudent[entry.StudentID] = append(seriesByStudent[entry.StudentID], record.Date)
		}
	}

	finalizeRate(&stats.Overall)
	for i := range stats.Daily {
		finalizeRate(&stats.Daily[i].AttendanceCounts)
	}
	for id, st := range perStudent {
		finalizeRate(&st.AttendanceCounts)
		st.Trend = StudentTrend(seriesByStudent[id])
		stats.Students = append(stats.Students, *st)
	}
	sort.Slice(stats.Students, func(i, j int) bool {
		a, b := stats.Students[i], stats.Students[j]
		if a.StudentName != b.StudentName {
			return a.StudentName < b.StudentName
		}
		return a.StudentID < b.StudentID
	})
	return stats, nil
}

// StudentHistory flattens a student's entries across records, optionally scoped to a class and date range.
func (s *StatisticsService) StudentHistory(ctx context.Context, studentID string, query dto.StudentHistoryQuery) (*models.StudentHistory, error) {
	defer s.observe("student", time.Now())

	from, to, err := parseDateRange(query.StartDate, query.EndDate)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}

	var classID *string
	if query.ClassID != "" {
		if _, err := s.classes.FindByID(ctx, query.ClassID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Internal(err, "failed to load class")
		}
		id := query.ClassID
		classID = &id
	}

	records, err := s.records.List(ctx, models.AttendanceRecordFilter{ClassID: query.ClassID, StudentID: studentID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attendance")
	}
	sortRecords(records)

	history := &models.StudentHistory{
		StudentID:   student.ID,
		StudentName: student.FullName,
		ClassID:     classID,
		DateFrom:    formatOptionalDate(from),
		DateTo:      formatOptionalDate(to),
		History:     []models.StudentHistoryItem{},
	}
	var series []time.Time
	for _, record := range records {
		entry, ok := record.Students.Find(studentID)
		if !ok {
			continue
		}
		history.History = append(history.History, models.StudentHistoryItem{
			RecordID:     record.ID,
			Date:         record.DateString(),
			ClassID:      record.ClassID,
			ClassName:    record.ClassName,
			LectureID:    record.LectureID,
			LectureTitle: record.LectureTitle,
			Status:       entry.Status,
			Remarks:      entry.Remarks,
		})
		history.Summary.Add(entry.Status)
		history.Summary.TotalDays++
		series = append(series, record.Date)
	}
	finalizeRate(&history.Summary)
	history.Trend = StudentTrend(series)
	return history, nil
}

// ExportClassStatistics renders the per-student table of ClassStatistics in the requested format.
func (s *StatisticsService) ExportClassStatistics(ctx context.Context, classID string, query dto.StatisticsExportQuery) (*ExportFile, error) {
	format, err := export.ParseFormat(strings.ToLower(query.Format))
	if err != nil {
		return nil, invalidField("format", "oneof", query.Format, "format must be csv, pdf or xlsx")
	}
	stats, err := s.ClassStatistics(ctx, classID, query.AttendanceRangeQuery)
	if err != nil {
		return nil, err
	}

	data, err := export.Render(format, statisticsDataset(stats))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	s.logger.Info("attendance statistics exported", zap.String("class_id", classID), zap.String("format", string(format)), zap.Int("bytes", len(data)))
	return &ExportFile{
		Filename:    exportFilename(stats, format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func statisticsDataset(stats *models.ClassStatistics) export.Dataset {
	title := "Attendance " + stats.ClassName
	if stats.DateFrom != nil || stats.DateTo != nil {
		title = fmt.Sprintf("%s %s..%s", title, derefOr(stats.DateFrom, ""), derefOr(stats.DateTo, ""))
	}
	data := export.Dataset{
		Title:        title,
		Headers:      []string{"Student", "NIS", "Present", "Absent", "Late", "Excused", "Total", "Rate (%)", "Trend"},
		LabelColumns: 2,
	}
	for _, st := range stats.Students {
		data.Rows = append(data.Rows, countsRow(st.StudentName, st.StudentIDNumber, st.AttendanceCounts, string(st.Trend)))
	}
	data.Rows = append(data.Rows, countsRow("All students", "", stats.Overall, ""))
	return data
}

func countsRow(name, nis string, c models.AttendanceCounts, trend string) []string {
	return []string{
		name,
		nis,
		strconv.Itoa(c.Present),
		strconv.Itoa(c.Absent),
		strconv.Itoa(c.Late),
		strconv.Itoa(c.Excused),
		strconv.Itoa(c.Total),
		strconv.FormatFloat(c.AttendanceRate, 'f', 2, 64),
		trend,
	}
}

func exportFilename(stats *models.ClassStatistics, format export.Format) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, stats.ClassName)
	if name == "" {
		name = stats.ClassID
	}
	return fmt.Sprintf("attendance-%s.%s", strings.ToLower(name), format)
}

// StudentTrend classifies a student's series of attendance dates.
//
// Fewer than 14 points is stable. Otherwise the number of entries in the last 7 points is compared
// with the number of entries in the 7 points ending at the midpoint of the series; more than 10%
// higher is improving and more than 10% lower is declining. The comparison is over raw entry counts,
// not attendance rate, so full windows always compare equal.
func StudentTrend(dates []time.Time) models.AttendanceTrend {
	if len(dates) < trendMinPoints {
		return models.TrendStable
	}
	mid := len(dates) / 2
	recent := dates[len(dates)-trendWindow:]
	previous := dates[mid-trendWindow : mid]

	recentCount := float64(len(recent))
	previousCount := float64(len(previous))
	switch {
	case recentCount > previousCount*trendUpper:
		return models.TrendImproving
	case recentCount < previousCount*trendLower:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// finalizeRate sets attendance_rate = (present+late)/total*100 rounded to two decimals, or 0 when empty.
func finalizeRate(c *models.AttendanceCounts) {
	if c.Total == 0 {
		c.AttendanceRate = 0
		return
	}
	rate := float64(c.Present+c.Late) / float64(c.Total) * 100
	c.AttendanceRate = math.Round(rate*100) / 100
}

func sortRecords(records []models.AttendanceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(models.DateLayout)
	return &s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func (s *StatisticsService) observe(kind string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStatistics(kind, time.Since(started))
	}
}
