package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that the requested job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrClaimLost signals that another execution already claimed the job,
	// or that it left the queued state before the claim.
	ErrClaimLost = errors.New("job claim lost")
	// ErrInvalidTransition signals a state change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Only terminal states re-enter the queue. A running job goes back only
// through JobStore.ReleaseJob, which the owning execution calls.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusStopped},
	JobStatusRunning: {JobStatusDone, JobStatusError, JobStatusStopped},
	JobStatusDone:    {JobStatusQueued},
	JobStatusError:   {JobStatusQueued},
	JobStatusStopped: {JobStatusQueued},
}

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s ends an execution.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusError, JobStatusStopped:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job may move from one state to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition wrapped with both states when
// the move is not allowed.
func CheckTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Sources lists the states from which a job may enter to.
func Sources(to JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{
		JobStatusQueued,
		JobStatusRunning,
		JobStatusDone,
		JobStatusError,
		JobStatusStopped,
	} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
