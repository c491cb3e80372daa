package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/systems"
)

// Task is the work fired on every trigger.
type Task interface {
	Invoke(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Invoke(ctx context.Context) error { return f(ctx) }

// ScheduleStatus provides information about scheduled execution
type ScheduleStatus struct {
	IsScheduled      bool
	Interval         time.Duration
	LastExecution    time.Time
	NextExecution    time.Time
	ExecutionCount   uint64
	MissedExecutions uint64
	ErrorCount       uint64
	LastError        error
	AverageLatency   time.Duration
}

type Options struct {
	Interval time.Duration
	// SlowThreshold logs a warning when one execution takes longer. Zero means
	// the interval itself.
	SlowThreshold time.Duration
	Logger        log.Log
}

// Scheduler fires a Task at a fixed period. A trigger that arrives while the
// previous execution is still running is dropped and counted as missed;
// triggers are never queued.
type Scheduler struct {
	task     Task
	interval time.Duration
	slow     time.Duration
	logger   log.Log

	running atomic.Bool
	busy    atomic.Bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	status  ScheduleStatus
	metrics systems.Metrics
}

func New(task Task, opts Options) (*Scheduler, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if opts.Interval <= 0 {
		return nil, errors.Wrapf(ErrInvalidInterval, "got %v", opts.Interval)
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = opts.Interval
	}
	if opts.Logger == nil {
		opts.Logger = log.Provide()
	}
	return &Scheduler{
		task:     task,
		interval: opts.Interval,
		slow:     opts.SlowThreshold,
		logger:   opts.Logger.With(log.String("component", "scheduler")),
		status:   ScheduleStatus{Interval: opts.Interval},
	}, nil
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run blocks, firing the task every interval until ctx is done. On return no
// execution is in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.mu.Lock()
	s.status.IsScheduled = true
	s.status.NextExecution = time.Now().Add(s.interval)
	s.mu.Unlock()
	s.logger.Info("Scheduler started", log.Duration("interval", s.interval))

	defer func() {
		s.wg.Wait()
		s.mu.Lock()
		s.status.IsScheduled = false
		s.status.NextExecution = time.Time{}
		status := s.status
		s.mu.Unlock()
		s.logger.Info("Scheduler stopped",
			log.Uint64("executions", status.ExecutionCount),
			log.Uint64("missed", status.MissedExecutions))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case at := <-ticker.C:
			s.mu.Lock()
			s.status.NextExecution = at.Add(s.interval)
			s.mu.Unlock()
			s.fire(ctx, at)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, at time.Time) {
	if !s.busy.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.status.MissedExecutions++
		s.mu.Unlock()
		s.logger.Debug("Trigger missed, previous execution still running")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.execute(ctx, at)
	}()
}

func (s *Scheduler) execute(ctx context.Context, at time.Time) {
	s.mu.Lock()
	execution := s.status.ExecutionCount + 1
	s.mu.Unlock()

	start := time.Now()
	err := s.invoke(log.ContextWith(ctx, log.Uint64("execution", execution)))
	took := time.Since(start)

	s.mu.Lock()
	s.status.LastExecution = start
	s.status.ExecutionCount++
	s.status.AverageLatency += (start.Sub(at) - s.status.AverageLatency) / time.Duration(s.status.ExecutionCount)
	if err != nil {
		s.status.ErrorCount++
		s.status.LastError = err
	}
	s.metrics.Observe(start, took, 1, err)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled task failed", log.Error(err))
	}
	if took > s.slow {
		s.logger.Warn("Scheduled task overran",
			log.Duration("took", took),
			log.Duration("interval", s.interval))
	}
}

func (s *Scheduler) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrTaskPanicked, "%v", r)
		}
	}()
	return s.task.Invoke(ctx)
}

// Status returns a copy of the current schedule status.
func (s *Scheduler) Status() ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) Metrics() systems.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}
