package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type attendanceRecordRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindByKey(ctx context.Context, classID string, date time.Time, lectureID *string) (*models.AttendanceRecord, error)
	UpdateIfVersion(ctx context.Context, record *models.AttendanceRecord, expectedVersion int) error
	DeleteIfVersion(ctx context.Context, id string, expectedVersion int) error
	SetLock(ctx context.Context, id string, locked bool, lockedBy *string, at time.Time) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceRecordFilter) ([]models.AttendanceRecord, error)
}

type attendanceClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindLecture(ctx context.Context, id string) (*models.Lecture, error)
}

type attendanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListEnrolled(ctx context.Context, classID string, studentIDs []string) ([]models.Student, error)
}

type attendanceAuditor interface {
	Record(ctx context.Context, action models.AuditAction, recordID string, actor models.Actor, metadata map[string]interface{})
}

type mutationMetrics interface {
	RecordMutation(operation, outcome string)
}

// AttendanceService runs the attendance record lifecycle: create, update, delete and lock.
// Every mutation is a single compare-and-swap on the stored version and is never retried here.
type AttendanceService struct {
	records   attendanceRecordRepository
	classes   attendanceClassReader
	students  attendanceStudentReader
	audit     attendanceAuditor
	metrics   mutationMetrics
	policy    AttendancePolicy
	limits    config.AttendanceConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the lifecycle manager.
func NewAttendanceService(
	records attendanceRecordRepository,
	classes attendanceClassReader,
	students attendanceStudentReader,
	audit attendanceAuditor,
	metrics mutationMetrics,
	cfg config.AttendanceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerAttendanceValidations(validate)
	return &AttendanceService{
		records:   records,
		classes:   classes,
		students:  students,
		audit:     audit,
		metrics:   metrics,
		policy:    NewAttendancePolicy(cfg),
		limits:    cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Policy exposes the thresholds in effect.
func (s *AttendanceService) Policy() AttendancePolicy {
	return s.policy
}

// Create stores a new record at version 1 after checking the class, lecture and enrolments.
func (s *AttendanceService) Create(ctx context.Context, classID string, req dto.CreateAttendanceRequest, actor models.Actor) (record *models.AttendanceRecord, err error) {
	defer func() { s.observe("create", err) }()

	now := s.now()
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	date, err := parseBusinessDate("date", req.Date, now)
	if err != nil {
		return nil, err
	}
	if err := checkStudentInputs(req.Students, s.limits.MaxStudentsPerRecord, s.limits.MaxRemarksLength); err != nil {
		return nil, err
	}

	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	var lectureID, lectureTitle *string
	if req.LectureID != nil {
		lecture, err := s.loadLecture(ctx, classID, strings.TrimSpace(*req.LectureID))
		if err != nil {
			return nil, err
		}
		lectureID, lectureTitle = &lecture.ID, &lecture.Title
	}

	enrolled, err := s.loadEnrolled(ctx, classID, req.Students)
	if err != nil {
		return nil, err
	}

	if _, err := s.records.FindByKey(ctx, classID, date, lectureID); err == nil {
		return nil, duplicateRecordError(classID, date, lectureID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check existing attendance")
	}

	record = &models.AttendanceRecord{
		ClassID:      class.ID,
		ClassName:    class.Name,
		Date:         date,
		LectureID:    lectureID,
		LectureTitle: lectureTitle,
		Students:     buildEntries(req.Students, enrolled, nil, actor.ID, now),
		SubmittedBy:  actor.ID,
		SubmittedAt:  now,
		CreatedAt:    now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, duplicateRecordError(classID, date, lectureID)
		}
		return nil, appErrors.Internal(err, "failed to create attendance")
	}

	s.logger.Info("attendance created",
		zap.String("record_id", record.ID),
		zap.String("class_id", classID),
		zap.String("date", record.DateString()),
		zap.String("user_id", actor.ID),
	)
	s.audit.Record(ctx, models.AuditActionCreate, record.ID, actor, map[string]interface{}{
		"class_id":   record.ClassID,
		"date":       record.DateString(),
		"lecture_id": record.LectureID,
		"students":   len(record.Students),
		"version":    record.Version,
	})
	return record, nil
}

// Update replaces the date and/or students of a record.
//
// Checks run in a fixed order: record exists, not locked, inside the update window,
// expected version matches when supplied, caller is the submitter or an administrator.
func (s *AttendanceService) Update(ctx context.Context, classID, recordID string, req dto.UpdateAttendanceRequest, actor models.Actor) (record *models.AttendanceRecord, err error) {
	defer func() { s.observe("update", err) }()

	now := s.now()
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	if req.Date == nil && req.Students == nil {
		return nil, appErrors.Clone(appErrors.ErrUnprocessable, "nothing to update: provide date or students")
	}
	var newDate *time.Time
	if req.Date != nil {
		d, err := parseBusinessDate("date", *req.Date, now)
		if err != nil {
			return nil, err
		}
		newDate = &d
	}
	if req.Students != nil {
		if err := checkStudentInputs(req.Students, s.limits.MaxStudentsPerRecord, s.limits.MaxRemarksLength); err != nil {
			return nil, err
		}
	}

	current, err := s.loadRecord(ctx, classID, recordID)
	if err != nil {
		return nil, err
	}
	if s.policy.IsLocked(current) {
		return nil, forbidden(ReasonLocked)
	}
	if !s.policy.WithinUpdateWindow(current, now) {
		return nil, forbidden(ReasonUpdateWindowExpired)
	}
	if req.Version != nil && *req.Version != current.Version {
		return nil, versionConflict(*req.Version, current.Version)
	}
	if decision := s.policy.CanUpdate(current, actor, now); !decision.Allowed {
		return nil, forbidden(decision.Reason)
	}
	// a record cannot be moved onto a date it could no longer be edited at
	if newDate != nil && !s.policy.DateWithinUpdateWindow(*newDate, now) {
		return nil, forbidden(ReasonUpdateWindowExpired)
	}

	next := *current
	changed := make([]string, 0, 2)
	if newDate != nil && !newDate.Equal(current.Date) {
		next.Date = *newDate
		changed = append(changed, "date")
	}
	if req.Students != nil {
		enrolled, err := s.loadEnrolled(ctx, current.ClassID, req.Students)
		if err != nil {
			return nil, err
		}
		next.Students = buildEntries(req.Students, enrolled, current.Students, actor.ID, now)
		changed = append(changed, "students")
	}
	next.UpdatedAt = now

	expected := current.Version
	if err := s.records.UpdateIfVersion(ctx, &next, expected); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			return nil, duplicateRecordError(next.ClassID, next.Date, next.LectureID)
		case errors.Is(err, repository.ErrWriteConflict):
			return nil, s.resolveLostWrite(ctx, recordID, expected)
		default:
			return nil, appErrors.Internal(err, "failed to update attendance")
		}
	}

	s.logger.Info("attendance updated",
		zap.String("record_id", recordID),
		zap.Int("version", next.Version),
		zap.Strings("changed", changed),
		zap.String("user_id", actor.ID),
	)
	meta := map[string]interface{}{
		"previous_version": expected,
		"version":          next.Version,
		"changed":          changed,
	}
	if newDate != nil {
		meta["previous_date"] = current.DateString()
		meta["date"] = next.DateString()
	}
	if req.Students != nil {
		meta["students"] = len(next.Students)
	}
	s.audit.Record(ctx, models.AuditActionUpdate, recordID, actor, meta)
	return &next, nil
}

// Delete hard-removes a record when it is unlocked, inside the delete window, and the caller may delete it.
func (s *AttendanceService) Delete(ctx context.Context, classID, recordID string, actor models.Actor) (err error) {
	defer func() { s.observe("delete", err) }()

	now := s.now()
	current, err := s.loadRecord(ctx, classID, recordID)
	if err != nil {
		return err
	}
	if decision := s.policy.CanDelete(current, actor, now); !decision.Allowed {
		return forbidden(decision.Reason)
	}

	if err := s.records.DeleteIfVersion(ctx, recordID, current.Version); err != nil {
		if errors.Is(err, repository.ErrWriteConflict) {
			return s.resolveLostWrite(ctx, recordID, current.Version)
		}
		return appErrors.Internal(err, "failed to delete attendance")
	}

	s.logger.Info("attendance deleted", zap.String("record_id", recordID), zap.String("user_id", actor.ID))
	s.audit.Record(ctx, models.AuditActionDelete, recordID, actor, map[string]interface{}{
		"class_id":     current.ClassID,
		"date":         current.DateString(),
		"lecture_id":   current.LectureID,
		"submitted_by": current.SubmittedBy,
		"students":     current.Students,
		"version":      current.Version,
	})
	return nil
}

// Lock sets or clears the administrative lock. Only administrators may call it and no version is checked.
func (s *AttendanceService) Lock(ctx context.Context, recordID string, locked bool, actor models.Actor) (record *models.AttendanceRecord, err error) {
	op := "unlock"
	if locked {
		op = "lock"
	}
	defer func() { s.observe(op, err) }()

	if !actor.Role.IsAdministrator() {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrForbidden, "only administrators can lock attendance"),
			map[string]string{"reason": string(ReasonRoleNotPermitted)})
	}
	if strings.TrimSpace(recordID) == "" {
		return nil, invalidField("recordId", "required", "", "record id is required")
	}

	var lockedBy *string
	if locked {
		id := actor.ID
		lockedBy = &id
	}
	record, err = s.records.SetLock(ctx, recordID, locked, lockedBy, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Internal(err, "failed to change attendance lock")
	}

	action := models.AuditActionUnlock
	if locked {
		action = models.AuditActionLock
	}
	s.logger.Info("attendance lock changed", zap.String("record_id", recordID), zap.Bool("locked", locked), zap.String("user_id", actor.ID))
	s.audit.Record(ctx, action, recordID, actor, map[string]interface{}{
		"is_locked": locked,
		"version":   record.Version,
	})
	return record, nil
}

// Get returns a record that belongs to the class.
func (s *AttendanceService) Get(ctx context.Context, classID, recordID string) (*models.AttendanceRecord, error) {
	return s.loadRecord(ctx, classID, recordID)
}

// List returns the class records inside the optional date range ordered by date.
func (s *AttendanceService) List(ctx context.Context, classID string, query dto.AttendanceRangeQuery) ([]models.AttendanceRecord, error) {
	from, to, err := parseDateRange(query.StartDate, query.EndDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	records, err := s.records.List(ctx, models.AttendanceRecordFilter{ClassID: classID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

// resolveLostWrite re-reads a record after a compare-and-swap matched nothing and names the cause.
func (s *AttendanceService) resolveLostWrite(ctx context.Context, recordID string, expected int) error {
	latest, err := s.records.FindByID(ctx, recordID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	case err != nil:
		return appErrors.Internal(err, "failed to reload attendance")
	case latest.IsLocked:
		return forbidden(ReasonLocked)
	default:
		return versionConflict(expected, latest.Version)
	}
}

func (s *AttendanceService) loadRecord(ctx context.Context, classID, recordID string) (*models.AttendanceRecord, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Internal(err, "failed to load attendance")
	}
	if classID != "" && record.ClassID != classID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	return record, nil
}

func (s *AttendanceService) loadClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	return class, nil
}

func (s *AttendanceService) loadLecture(ctx context.Context, classID, lectureID string) (*models.Lecture, error) {
	lecture, err := s.classes.FindLecture(ctx, lectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecture not found")
		}
		return nil, appErrors.Internal(err, "failed to load lecture")
	}
	if lecture.ClassID != classID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lecture not found for class")
	}
	return lecture, nil
}

func (s *AttendanceService) loadEnrolled(ctx context.Context, classID string, inputs []dto.AttendanceStudentInput) (map[string]models.Student, error) {
	ids := studentIDs(inputs)
	students, err := s.students.ListEnrolled(ctx, classID, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrolled students")
	}
	enrolled := make(map[string]models.Student, len(students))
	for _, st := range students {
		enrolled[st.ID] = st
	}
	var missing []string
	for _, id := range ids {
		if _, ok := enrolled[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "student not enrolled in class"),
			map[string]interface{}{"student_ids": missing})
	}
	return enrolled, nil
}

func (s *AttendanceService) observe(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.metrics.RecordMutation(operation, outcome)
}

// buildEntries snapshots student names onto the record. Entries whose status and remarks are unchanged
// keep their original marking time and author.
func buildEntries(inputs []dto.AttendanceStudentInput, enrolled map[string]models.Student, previous models.AttendanceEntries, actorID string, now time.Time) models.AttendanceEntries {
	entries := make(models.AttendanceEntries, 0, len(inputs))
	for _, in := range inputs {
		id := strings.TrimSpace(in.StudentID)
		student := enrolled[id]
		entry := models.AttendanceEntry{
			StudentID:       id,
			StudentName:     student.FullName,
			StudentIDNumber: student.NIS,
			Status:          normaliseStatus(in.Status),
			Remarks:         trimRemarks(in.Remarks),
			MarkedAt:        now,
			MarkedBy:        actorID,
		}
		if prev, ok := previous.Find(id); ok && prev.Status == entry.Status && equalRemarks(prev.Remarks, entry.Remarks) {
			entry.MarkedAt = prev.MarkedAt
			entry.MarkedBy = prev.MarkedBy
		}
		entries = append(entries, entry)
	}
	return entries
}

func trimRemarks(remarks *string) *string {
	if remarks == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*remarks)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func equalRemarks(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func forbidden(reason PolicyReason) *appErrors.Error {
	message := "attendance record cannot be modified"
	switch reason {
	case ReasonLocked:
		message = "attendance record is locked"
	case ReasonUpdateWindowExpired:
		message = "attendance record is too old to update"
	case ReasonDeleteWindowExpired:
		message = "attendance record is too old to delete"
	case ReasonNotSubmitter:
		message = "only the submitter or an administrator can modify this record"
	case ReasonTeacherWindowExpired:
		message = "teacher delete window for this record has passed"
	case ReasonRoleNotPermitted:
		message = "role not permitted to modify attendance"
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrForbidden, message), map[string]string{"reason": string(reason)})
}

func versionConflict(expected, current int) *appErrors.Error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrVersionConflict, "attendance record was modified by another request"),
		map[string]int{"expected_version": expected, "current_version": current})
}

func duplicateRecordError(classID string, date time.Time, lectureID *string) *appErrors.Error {
	details := map[string]interface{}{"class_id": classID, "date": date.Format(models.DateLayout)}
	if lectureID != nil {
		details["lecture_id"] = *lectureID
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrDuplicateAttendance, "attendance already recorded for this class and date"), details)
}
