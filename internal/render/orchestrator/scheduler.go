package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrSchedulerStopped = errors.New("scheduler is not running")
)

// SchedulerStats is a snapshot of scheduler counters
type SchedulerStats struct {
	Dispatched uint64
	Armed      uint64
	Inflight   int
}

// Scheduler owns the execution of render jobs and their timeout guards.
// Jobs derive their context from the scheduler, so Stop cancels all of them.
type Scheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup

	dispatched atomic.Uint64
	armed      atomic.Uint64
	inflight   atomic.Int64

	logger *zap.Logger
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Start makes the scheduler accept jobs. Starting a stopped scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.ctx != nil {
		return fmt.Errorf("scheduler cannot be restarted")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.logger.Debug("Scheduler started")
	return nil
}

// Stop cancels every in-flight job and waits for their goroutines to exit
// or for ctx to end, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	inflight := s.inflight.Load()
	s.logger.Info("Stopping scheduler", zap.Int64("inflight", inflight))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop deadline exceeded",
			zap.Int64("remaining", s.inflight.Load()))
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Dispatch runs fn on its own goroutine. When the scheduler is not running
// the returned job is already failed with ErrSchedulerStopped.
func (s *Scheduler) Dispatch(fn RenderFunc) *Job {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		job := newJob(context.Background())
		job.resolve(Result{Outcome: OutcomeFailed, Err: ErrSchedulerStopped})
		job.cancel()
		return job
	}
	job := newJob(s.ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	s.dispatched.Add(1)
	s.inflight.Add(1)

	// scheduler shutdown resolves the job even if the render ignores its context
	stop := context.AfterFunc(job.ctx, func() {
		job.resolve(Result{Outcome: OutcomeCancelled})
	})

	go func() {
		defer s.wg.Done()
		defer s.inflight.Add(-1)
		job.run(fn)
		stop()
		job.cancel()
	}()

	return job
}

// Arm schedules action after d. The action returns whether it took effect.
func (s *Scheduler) Arm(d time.Duration, action func() bool) *TimeoutGuard {
	s.armed.Add(1)
	return newTimeoutGuard(d, action)
}

// Inflight returns the number of job goroutines still running
func (s *Scheduler) Inflight() int {
	return int(s.inflight.Load())
}

func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Dispatched: s.dispatched.Load(),
		Armed:      s.armed.Load(),
		Inflight:   s.Inflight(),
	}
}
