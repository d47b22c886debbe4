package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
)

type serverSpy struct {
	onShutdown func()
	err        error
}

func (s *serverSpy) Shutdown(ctx context.Context) error {
	if s.onShutdown != nil {
		s.onShutdown()
	}
	return s.err
}

func TestDrainStopsWorkersAfterServer(t *testing.T) {
	queue := jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error { return nil }, jobs.QueueConfig{Workers: 1, BufferSize: 4})
	queue.Start(context.Background())

	var enqueueDuringShutdown error
	srv := &serverSpy{onShutdown: func() {
		enqueueDuringShutdown = queue.TryEnqueue(jobs.Job{Type: "audit"})
	}}

	require.NoError(t, drain(context.Background(), srv, queue))
	assert.NoError(t, enqueueDuringShutdown)
	assert.ErrorIs(t, queue.TryEnqueue(jobs.Job{Type: "audit"}), jobs.ErrQueueStopped)
}

func TestDrainStopsWorkersWhenShutdownFails(t *testing.T) {
	queue := jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error { return nil }, jobs.QueueConfig{Workers: 1, BufferSize: 1})
	queue.Start(context.Background())

	err := drain(context.Background(), &serverSpy{err: context.DeadlineExceeded}, queue)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.ErrorIs(t, queue.TryEnqueue(jobs.Job{}), jobs.ErrQueueStopped)
}
