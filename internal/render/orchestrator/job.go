package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// Outcome is the terminal state of a render job
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Result is what a job resolved with. Output is set only on success and Err only on failure.
type Result struct {
	Outcome Outcome
	Output  []byte
	Err     error
}

// RenderFunc performs one render. It must return promptly once ctx is done.
type RenderFunc func(ctx context.Context) ([]byte, error)

// Job is one in-flight render attempt. The first terminal signal wins:
// completion, failure and cancellation race through resolve and every
// later signal is discarded.
type Job struct {
	ctx    context.Context
	cancel context.CancelFunc

	once   sync.Once
	done   chan struct{}
	result Result

	mu       sync.Mutex
	resolved bool
	hooks    []func()
}

func newJob(parent context.Context) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// resolve reports whether r became the job result
func (j *Job) resolve(r Result) bool {
	won := false
	j.once.Do(func() {
		j.result = r
		won = true

		j.mu.Lock()
		j.resolved = true
		hooks := j.hooks
		j.hooks = nil
		j.mu.Unlock()

		for _, hook := range hooks {
			hook()
		}
		close(j.done)
	})
	return won
}

// onResolve runs f when the job resolves, before Done is closed. f runs
// immediately when the job already resolved. f must not block.
func (j *Job) onResolve(f func()) {
	j.mu.Lock()
	if !j.resolved {
		j.hooks = append(j.hooks, f)
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()
	f()
}

// Cancel resolves the job as cancelled, then signals the render to stop.
// It reports whether the cancellation became the result; a job that already
// resolved keeps its result.
func (j *Job) Cancel() bool {
	won := j.resolve(Result{Outcome: OutcomeCancelled})
	j.cancel()
	return won
}

// Done is closed once the job has a result
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result blocks until the job resolves
func (j *Job) Result() Result {
	<-j.done
	return j.result
}

// run executes fn and resolves the job with its outcome. A panic in fn
// becomes a failure.
func (j *Job) run(fn RenderFunc) {
	defer func() {
		if p := recover(); p != nil {
			j.resolve(Result{Outcome: OutcomeFailed, Err: fmt.Errorf("render panicked: %v", p)})
		}
	}()

	output, err := fn(j.ctx)
	switch {
	case err == nil:
		j.resolve(Result{Outcome: OutcomeSuccess, Output: output})
	case j.ctx.Err() != nil:
		// the render gave up because its context ended
		j.resolve(Result{Outcome: OutcomeCancelled})
	default:
		j.resolve(Result{Outcome: OutcomeFailed, Err: err})
	}
}
