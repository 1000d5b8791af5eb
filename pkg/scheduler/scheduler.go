// Package scheduler runs a task once after a delay. The caller can cancel
// the job, poll its result, or receive a notification when it finishes.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Task is the work to perform when the job fires.
type Task interface {
	Run(ctx context.Context) error
}

// RunFunc adapts a plain function to the Task interface.
type RunFunc func(ctx context.Context) error

func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Schedule runs task after waitTime. If done is not nil, it receives a
// notification once the job has completed, failed or been canceled.
func Schedule(ctx context.Context, task Task, waitTime time.Duration, done chan<- struct{}) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	j := Job{
		task:   task,
		state:  stateScheduled,
		due:    time.Now().Add(waitTime),
		cancel: cancel,
		done:   done,
	}
	go j.run(jobCtx, waitTime)
	return &j
}

type Job struct {
	task   Task
	state  state
	err    error
	due    time.Time
	cancel context.CancelFunc
	done   chan<- struct{}
	lock   sync.RWMutex
}

func (j *Job) run(ctx context.Context, waitTime time.Duration) {
	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		j.setState(stateCanceled, ErrCanceled)
	case <-timer.C:
		if err := j.task.Run(ctx); err != nil {
			j.setState(stateFailed, &errFailed{err: err})
		} else {
			j.setState(stateCompleted, nil)
		}
	}
	if j.done != nil {
		j.done <- struct{}{}
	}
}

// Due returns the time the job is scheduled to fire.
func (j *Job) Due() time.Time {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.due
}

// Cancel stops a job that has not fired yet. Canceling a finished job is a
// no-op.
func (j *Job) Cancel() {
	j.cancel()
}

// Result reports whether the job has finished and, if so, its error.
// A canceled job finishes with ErrCanceled.
func (j *Job) Result() (bool, error) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.state.done(), j.err
}

func (j *Job) setState(state state, err error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.state = state
	j.err = err
}

type state int

const (
	stateUnknown state = iota
	stateScheduled
	stateCanceled
	stateCompleted
	stateFailed
)

func (s state) done() bool {
	return s == stateCompleted || s == stateFailed || s == stateCanceled
}
