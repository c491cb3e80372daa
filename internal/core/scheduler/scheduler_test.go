package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/envsim/internal/core/observability/log"
)

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, s.Run(ctx))
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Options{Interval: time.Millisecond})
	assert.ErrorIs(t, err, ErrNilTask)

	_, err = New(TaskFunc(func(context.Context) error { return nil }), Options{})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestSchedulerFiresPeriodically(t *testing.T) {
	var calls atomic.Int64
	s, err := New(TaskFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}), Options{Interval: 5 * time.Millisecond, Logger: log.NewNop()})
	require.NoError(t, err)

	runFor(t, s, 100*time.Millisecond)

	assert.Greater(t, calls.Load(), int64(3))
	status := s.Status()
	assert.False(t, status.IsScheduled)
	assert.Equal(t, uint64(calls.Load()), status.ExecutionCount)
	assert.Equal(t, status.ExecutionCount, s.Metrics().ExecutionCount)
}

func TestSchedulerSkipsWhileBusy(t *testing.T) {
	var calls, concurrent, maxConcurrent atomic.Int64
	s, err := New(TaskFunc(func(context.Context) error {
		calls.Add(1)
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}
		time.Sleep(25 * time.Millisecond)
		concurrent.Add(-1)
		return nil
	}), Options{Interval: 5 * time.Millisecond, Logger: log.NewNop()})
	require.NoError(t, err)

	runFor(t, s, 120*time.Millisecond)

	assert.Equal(t, int64(1), maxConcurrent.Load())
	assert.Zero(t, concurrent.Load(), "Run returned with an execution in flight")
	assert.Greater(t, s.Status().MissedExecutions, uint64(0))
}

func TestSchedulerRecordsErrorsAndPanics(t *testing.T) {
	var calls atomic.Int64
	s, err := New(TaskFunc(func(context.Context) error {
		if calls.Add(1)%2 == 0 {
			panic("boom")
		}
		return errors.New("task failed")
	}), Options{Interval: 5 * time.Millisecond, Logger: log.NewNop()})
	require.NoError(t, err)

	runFor(t, s, 60*time.Millisecond)

	status := s.Status()
	require.Greater(t, status.ExecutionCount, uint64(1))
	assert.Equal(t, status.ExecutionCount, status.ErrorCount)
	assert.Error(t, status.LastError)
}

func TestSchedulerRejectsSecondRun(t *testing.T) {
	s, err := New(TaskFunc(func(context.Context) error { return nil }),
		Options{Interval: time.Millisecond, Logger: log.NewNop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().IsScheduled }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}
