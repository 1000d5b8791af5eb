package scheduler

import (
	"errors"
)

var (
	// ErrCanceled is the result of a job canceled before it fired.
	ErrCanceled = errors.New("job canceled")
	// ErrFailed matches (with errors.Is) any job whose task returned an
	// error. Unwrap for the task's own error.
	ErrFailed = &errFailed{}
)

type errFailed struct {
	err error
}

func (e *errFailed) Error() string {
	reason := "unknown reason"
	if e.err != nil {
		reason = e.err.Error()
	}
	return "job failed: " + reason
}

func (e *errFailed) Is(err error) bool {
	return err == ErrFailed
}

func (e *errFailed) Unwrap() error {
	return e.err
}
