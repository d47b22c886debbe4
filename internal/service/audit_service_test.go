package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
)

type auditRepoStub struct {
	mu        sync.Mutex
	entries   []models.AuditEntry
	createErr error
	listErr   error
	lastLimit int
	written   chan struct{}
}

func (s *auditRepoStub) Create(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written != nil {
		defer func() { s.written <- struct{}{} }()
	}
	if s.createErr != nil {
		return s.createErr
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *auditRepoStub) ListByRecord(ctx context.Context, recordID string, limit int) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.AuditEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].RecordID == recordID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *auditRepoStub) snapshot() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry(nil), s.entries...)
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) TryEnqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type auditMetricsStub struct {
	mu      sync.Mutex
	results map[string]int
}

func (m *auditMetricsStub) RecordAudit(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string]int{}
	}
	m.results[result]++
}

func (m *auditMetricsStub) get(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[result]
}

var auditActor = models.Actor{ID: "teacher-1", Role: models.RoleTeacher}

func TestAuditRecordEnqueuesEntry(t *testing.T) {
	repo := &auditRepoStub{}
	dispatcher := &dispatcherStub{}
	metrics := &auditMetricsStub{}
	svc := NewAuditService(repo, metrics, nil, time.Second)
	svc.UseQueue(dispatcher)

	svc.Record(context.Background(), models.AuditActionCreate, "rec-1", auditActor, map[string]interface{}{"students": 2})

	require.Len(t, dispatcher.jobs, 1)
	entry, ok := dispatcher.jobs[0].Payload.(models.AuditEntry)
	require.True(t, ok)
	assert.Equal(t, models.AuditActionCreate, entry.Action)
	assert.Equal(t, "rec-1", entry.RecordID)
	assert.Equal(t, "teacher-1", entry.UserID)
	assert.Equal(t, models.RoleTeacher, entry.UserRole)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	assert.Equal(t, float64(2), meta["students"])
	assert.Equal(t, 1, metrics.get(AuditResultQueued))
}

func TestAuditRecordDropsWhenQueueFull(t *testing.T) {
	metrics := &auditMetricsStub{}
	svc := NewAuditService(&auditRepoStub{}, metrics, nil, time.Second)
	svc.UseQueue(&dispatcherStub{err: jobs.ErrQueueFull})

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), models.AuditActionDelete, "rec-1", auditActor, nil)
	})
	assert.Equal(t, 1, metrics.get(AuditResultDropped))
}

func TestAuditHandleWritesEntry(t *testing.T) {
	repo := &auditRepoStub{}
	metrics := &auditMetricsStub{}
	svc := NewAuditService(repo, metrics, nil, time.Second)

	err := svc.Handle(context.Background(), jobs.Job{Payload: models.AuditEntry{ID: "a1", RecordID: "rec-1", Action: models.AuditActionLock}})
	require.NoError(t, err)
	assert.Len(t, repo.snapshot(), 1)
	assert.Equal(t, 1, metrics.get(AuditResultWritten))
}

func TestAuditHandleSurfacesWriteFailureToQueue(t *testing.T) {
	repo := &auditRepoStub{createErr: errors.New("db down")}
	metrics := &auditMetricsStub{}
	svc := NewAuditService(repo, metrics, nil, time.Second)

	err := svc.Handle(context.Background(), jobs.Job{Payload: models.AuditEntry{ID: "a1"}})
	assert.Error(t, err)
	assert.Equal(t, 1, metrics.get(AuditResultFailed))
}

func TestAuditHandleIgnoresForeignPayload(t *testing.T) {
	svc := NewAuditService(&auditRepoStub{}, nil, nil, time.Second)
	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: "nope"}))
}

func TestAuditRecordWithoutQueueWritesInBackground(t *testing.T) {
	repo := &auditRepoStub{written: make(chan struct{}, 1)}
	svc := NewAuditService(repo, nil, nil, time.Second)

	svc.Record(context.Background(), models.AuditActionUpdate, "rec-9", auditActor, nil)

	select {
	case <-repo.written:
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry not written")
	}
	entries := repo.snapshot()
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{}`, string(entries[0].Metadata))
}

func TestAuditRecordFailureNeverReachesCaller(t *testing.T) {
	repo := &auditRepoStub{createErr: errors.New("db down"), written: make(chan struct{}, 1)}
	svc := NewAuditService(repo, nil, nil, time.Second)

	svc.Record(context.Background(), models.AuditActionUpdate, "rec-9", auditActor, nil)
	<-repo.written
	assert.Empty(t, repo.snapshot())
}

func TestAuditListLimits(t *testing.T) {
	repo := &auditRepoStub{}
	svc := NewAuditService(repo, nil, nil, time.Second)

	entries, err := svc.List(context.Background(), "rec-1", 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Equal(t, defaultAuditLimit, repo.lastLimit)

	_, err = svc.List(context.Background(), "rec-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, maxAuditLimit, repo.lastLimit)

	_, err = svc.List(context.Background(), "rec-1", -1)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.List(context.Background(), "", 10)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAuditListNewestFirst(t *testing.T) {
	repo := &auditRepoStub{entries: []models.AuditEntry{
		{ID: "1", RecordID: "rec-1", Action: models.AuditActionCreate},
		{ID: "2", RecordID: "rec-1", Action: models.AuditActionUpdate},
		{ID: "3", RecordID: "rec-2", Action: models.AuditActionCreate},
	}}
	svc := NewAuditService(repo, nil, nil, time.Second)

	entries, err := svc.List(context.Background(), "rec-1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2", entries[0].ID)
}

func TestAuditListWrapsRepositoryError(t *testing.T) {
	svc := NewAuditService(&auditRepoStub{listErr: errors.New("boom")}, nil, nil, time.Second)
	_, err := svc.List(context.Background(), "rec-1", 5)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
