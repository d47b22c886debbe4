package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
)

const (
	auditJobType         = "attendance_audit"
	defaultAuditLimit    = 50
	maxAuditLimit        = 200
	defaultAuditDeadline = 5 * time.Second
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	ListByRecord(ctx context.Context, recordID string, limit int) ([]models.AuditEntry, error)
}

type auditDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

type auditMetrics interface {
	RecordAudit(result string)
}

// AuditService appends attendance audit entries off the request path and serves the trail back.
type AuditService struct {
	repo         auditRepository
	queue        auditDispatcher
	metrics      auditMetrics
	logger       *zap.Logger
	writeTimeout time.Duration
	now          func() time.Time
}

// NewAuditService constructs the audit trail. Without a queue, entries are written from a detached goroutine.
func NewAuditService(repo auditRepository, metrics auditMetrics, logger *zap.Logger, writeTimeout time.Duration) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultAuditDeadline
	}
	return &AuditService{
		repo:         repo,
		metrics:      metrics,
		logger:       logger,
		writeTimeout: writeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// UseQueue routes entries through a background worker pool whose handler is Handle.
func (s *AuditService) UseQueue(queue auditDispatcher) {
	s.queue = queue
}

// Record builds an entry and hands it off without waiting. It never fails the caller.
func (s *AuditService) Record(ctx context.Context, action models.AuditAction, recordID string, actor models.Actor, metadata map[string]interface{}) {
	if s == nil {
		return
	}
	entry := models.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		RecordID:  recordID,
		UserID:    actor.ID,
		UserRole:  actor.Role,
		Metadata:  types.JSONText(`{}`),
		Timestamp: s.now(),
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Warn("audit metadata not serialisable", zap.String("action", string(action)), zap.String("record_id", recordID), zap.Error(err))
		} else {
			entry.Metadata = types.JSONText(raw)
		}
	}

	if s.queue == nil {
		go func() { _ = s.write(context.Background(), entry) }()
		s.count(AuditResultQueued)
		return
	}

	if err := s.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry}); err != nil {
		s.count(AuditResultDropped)
		s.logger.Warn("audit entry dropped",
			zap.String("action", string(action)),
			zap.String("record_id", recordID),
			zap.String("user_id", actor.ID),
			zap.Error(err),
		)
		return
	}
	s.count(AuditResultQueued)
}

// Handle is the queue handler persisting one entry. A returned error lets the queue retry.
func (s *AuditService) Handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditEntry)
	if !ok {
		s.logger.Error("unexpected audit job payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	return s.write(ctx, entry)
}

func (s *AuditService) write(ctx context.Context, entry models.AuditEntry) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.repo.Create(writeCtx, &entry); err != nil {
		s.count(AuditResultFailed)
		s.logger.Error("write audit entry",
			zap.String("audit_id", entry.ID),
			zap.String("action", string(entry.Action)),
			zap.String("record_id", entry.RecordID),
			zap.Error(err),
		)
		return err
	}
	s.count(AuditResultWritten)
	return nil
}

// List returns the trail for a record newest first. Limit defaults to 50 and is capped at 200.
func (s *AuditService) List(ctx context.Context, recordID string, limit int) ([]models.AuditEntry, error) {
	if recordID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}
	if limit < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "limit must be positive")
	}
	if limit == 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	entries, err := s.repo.ListByRecord(ctx, recordID, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load audit trail")
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}

func (s *AuditService) count(result string) {
	if s.metrics != nil {
		s.metrics.RecordAudit(result)
	}
}
