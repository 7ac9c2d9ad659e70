package core

import (
	"sync"
	"sync/atomic"
	"time"
)

const reasonNotAllowed = "transition not allowed by state machine"

// Job is a single print job moving through the stage pipeline. Its state
// may be changed from any goroutine; every change goes through TryTransition.
type Job struct {
	name  string
	state atomic.Uint32
	bus   atomic.Pointer[EventBus]

	payloadMu sync.Mutex
	payload   []byte
}

func NewJob(name string) *Job {
	return &Job{name: name}
}

func (j *Job) Name() string {
	return j.name
}

func (j *Job) State() JobState {
	return JobState(j.state.Load())
}

// SetEventBus attaches the bus transition events are reported to. A nil bus
// disables reporting. The job does not own the bus.
func (j *Job) SetEventBus(bus *EventBus) {
	j.bus.Store(bus)
}

func (j *Job) EventBus() *EventBus {
	return j.bus.Load()
}

// TryTransition attempts to move the job to the given state. The legality
// check is repeated against the freshly observed state every time the
// compare-and-swap loses a race, so an illegal move is never applied.
func (j *Job) TryTransition(to JobState) TransitionResult {
	from := j.State()
	for {
		if !validTransition(from, to) {
			j.publish(EventRejectedTransition, from, to, reasonNotAllowed)
			return TransitionResult{OK: false, From: from, To: to}
		}
		if from == to {
			return TransitionResult{OK: true, From: from, To: to}
		}
		if j.state.CompareAndSwap(uint32(from), uint32(to)) {
			j.publish(EventStateChanged, from, to, "")
			return TransitionResult{OK: true, From: from, To: to}
		}
		from = j.State()
	}
}

func (j *Job) Enqueue() bool       { return j.TryTransition(JobStateQueued).OK }
func (j *Job) Schedule() bool      { return j.TryTransition(JobStateScheduled).OK }
func (j *Job) StartSpooling() bool { return j.TryTransition(JobStateSpooling).OK }
func (j *Job) StartPrinting() bool { return j.TryTransition(JobStatePrinting).OK }
func (j *Job) Complete() bool      { return j.TryTransition(JobStateCompleted).OK }
func (j *Job) Fail() bool          { return j.TryTransition(JobStateFailed).OK }

// Cancel is idempotent: an already canceled job reports success without
// publishing anything, a job that ended any other way reports failure.
func (j *Job) Cancel() bool {
	s := j.State()
	if s == JobStateCanceled {
		return true
	}
	if IsTerminal(s) {
		return false
	}
	return j.TryTransition(JobStateCanceled).OK
}

func (j *Job) SetPayload(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	j.payloadMu.Lock()
	j.payload = buf
	j.payloadMu.Unlock()
}

// Payload returns a copy of the job content.
func (j *Job) Payload() []byte {
	j.payloadMu.Lock()
	defer j.payloadMu.Unlock()

	buf := make([]byte, len(j.payload))
	copy(buf, j.payload)
	return buf
}

func (j *Job) publish(kind EventKind, from, to JobState, reason string) {
	bus := j.bus.Load()
	if bus == nil {
		return
	}
	bus.Publish(JobEvent{
		Kind:      kind,
		JobName:   j.name,
		From:      from,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
}
