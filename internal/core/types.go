package core

import (
	"fmt"
)

type JobState uint32

const (
	JobStateCreated JobState = iota
	JobStateQueued
	JobStateScheduled
	JobStateSpooling
	JobStatePrinting
	JobStateCompleted
	JobStateCanceled
	JobStateFailed
)

var jobStateNames = map[JobState]string{
	JobStateCreated:   "created",
	JobStateQueued:    "queued",
	JobStateScheduled: "scheduled",
	JobStateSpooling:  "spooling",
	JobStatePrinting:  "printing",
	JobStateCompleted: "completed",
	JobStateCanceled:  "canceled",
	JobStateFailed:    "failed",
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseJobState is the inverse of JobState.String.
func ParseJobState(name string) (JobState, error) {
	for state, n := range jobStateNames {
		if n == name {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown job state: %q", name)
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s JobState) bool {
	return s == JobStateCompleted || s == JobStateCanceled || s == JobStateFailed
}

// allowedTransitions lists the forward moves out of each non-terminal state.
// Self transitions are handled separately.
var allowedTransitions = map[JobState][]JobState{
	JobStateCreated:   {JobStateQueued, JobStateCanceled, JobStateFailed},
	JobStateQueued:    {JobStateScheduled, JobStateCanceled, JobStateFailed},
	JobStateScheduled: {JobStateSpooling, JobStateCanceled, JobStateFailed},
	JobStateSpooling:  {JobStatePrinting, JobStateCanceled, JobStateFailed},
	JobStatePrinting:  {JobStateCompleted, JobStateCanceled, JobStateFailed},
}

func validTransition(from, to JobState) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type TransitionResult struct {
	OK   bool
	From JobState
	To   JobState
}
