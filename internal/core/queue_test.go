package core_test

import (
	"sync"
	"testing"
	"time"

	"github.com/orrn/printpipe/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type recordingBackend struct {
	mu       sync.Mutex
	order    []string
	payloads map[string][]byte
	result   bool

	// When set, Print signals entered and blocks until release is closed.
	entered chan string
	release chan struct{}
}

func newRecordingBackend(result bool) *recordingBackend {
	return &recordingBackend{
		payloads: make(map[string][]byte),
		result:   result,
	}
}

func (b *recordingBackend) Print(job *core.Job, payload []byte) bool {
	if b.entered != nil {
		b.entered <- job.Name()
		<-b.release
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = append(b.order, job.Name())
	b.payloads[job.Name()] = payload
	return b.result
}

func (b *recordingBackend) Order() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

func (b *recordingBackend) Payload(name string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payloads[name]
}

type funcSpooler func(job *core.Job) core.SpoolResult

func (f funcSpooler) Spool(job *core.Job) core.SpoolResult { return f(job) }

type panicBackend struct{}

func (panicBackend) Print(*core.Job, []byte) bool { panic("printer on fire") }

func waitTerminal(t *testing.T, job *core.Job) {
	t.Helper()
	require.Eventually(t, func() bool {
		return core.IsTerminal(job.State())
	}, waitFor, time.Millisecond)
}

func TestScheduler_ProcessesJob(t *testing.T) {
	backend := newRecordingBackend(true)
	sched := core.NewScheduler(core.WithBackend(backend))
	sched.Start()
	defer sched.Stop()

	job, bus := newJobWithBus("doc")
	job.SetPayload([]byte("hello"))

	require.True(t, sched.Submit(job))
	waitTerminal(t, job)

	assert.Equal(t, core.JobStateCompleted, job.State())
	assert.Equal(t, []byte("hello"), backend.Payload("doc"))

	var path []core.JobState
	for _, ev := range bus.Snapshot() {
		require.Equal(t, core.EventStateChanged, ev.Kind)
		path = append(path, ev.To)
	}
	assert.Equal(t, []core.JobState{
		core.JobStateQueued,
		core.JobStateScheduled,
		core.JobStateSpooling,
		core.JobStatePrinting,
		core.JobStateCompleted,
	}, path)
}

func TestScheduler_NoBackendFails(t *testing.T) {
	sched := core.NewScheduler()
	sched.Start()
	defer sched.Stop()

	job := core.NewJob("doc")
	require.True(t, sched.Submit(job))
	waitTerminal(t, job)

	assert.Equal(t, core.JobStateFailed, job.State())
}

func TestScheduler_BackendFailureFails(t *testing.T) {
	sched := core.NewScheduler(core.WithBackend(newRecordingBackend(false)))
	sched.Start()
	defer sched.Stop()

	job := core.NewJob("doc")
	require.True(t, sched.Submit(job))
	waitTerminal(t, job)

	assert.Equal(t, core.JobStateFailed, job.State())
}

func TestScheduler_BackendPanicFails(t *testing.T) {
	sched := core.NewScheduler(core.WithBackend(panicBackend{}))
	sched.Start()
	defer sched.Stop()

	job := core.NewJob("doc")
	require.True(t, sched.Submit(job))
	waitTerminal(t, job)

	assert.Equal(t, core.JobStateFailed, job.State())
}

func TestScheduler_SpoolerFailures(t *testing.T) {
	tests := []struct {
		name    string
		spooler core.Spooler
	}{
		{
			name: "reports failure",
			spooler: funcSpooler(func(*core.Job) core.SpoolResult {
				return core.SpoolResult{OK: false, Err: "out of paper"}
			}),
		},
		{
			name: "panics",
			spooler: funcSpooler(func(*core.Job) core.SpoolResult {
				panic("boom")
			}),
		},
		{
			name:    "missing",
			spooler: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newRecordingBackend(true)
			sched := core.NewScheduler(core.WithBackend(backend))
			sched.SetSpooler(tt.spooler)
			sched.Start()
			defer sched.Stop()

			job, bus := newJobWithBus("doc")
			require.True(t, sched.Submit(job))
			waitTerminal(t, job)

			assert.Equal(t, core.JobStateFailed, job.State())
			assert.Empty(t, backend.Order())
			events := bus.Snapshot()
			require.NotEmpty(t, events)
			assert.Equal(t, core.JobStateSpooling, events[len(events)-1].From)
		})
	}
}

func TestScheduler_FIFO(t *testing.T) {
	backend := newRecordingBackend(true)
	sched := core.NewScheduler()
	sched.SetBackend(backend)

	names := []string{"a", "b", "c", "d", "e"}
	jobs := make([]*core.Job, 0, len(names))
	for _, n := range names {
		job := core.NewJob(n)
		jobs = append(jobs, job)
		require.True(t, sched.Submit(job))
	}
	assert.Equal(t, len(names), sched.Pending())

	sched.Start()
	defer sched.Stop()

	for _, job := range jobs {
		waitTerminal(t, job)
		assert.Equal(t, core.JobStateCompleted, job.State())
	}
	assert.Equal(t, names, backend.Order())
}

func TestScheduler_CanceledBeforeDequeue(t *testing.T) {
	backend := newRecordingBackend(true)
	sched := core.NewScheduler(core.WithBackend(backend))

	job, bus := newJobWithBus("doc")
	require.True(t, sched.Submit(job))
	require.True(t, job.Cancel())

	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool { return sched.Pending() == 0 }, waitFor, time.Millisecond)
	probe := core.NewJob("probe")
	require.True(t, sched.Submit(probe))
	waitTerminal(t, probe)

	assert.Equal(t, core.JobStateCanceled, job.State())
	assert.Equal(t, []string{"probe"}, backend.Order())

	events := bus.Snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, core.EventStateChanged, events[0].Kind)
	assert.Equal(t, core.EventRejectedTransition, events[1].Kind)
	assert.Equal(t, core.JobStateScheduled, events[1].To)
}

func TestScheduler_CancelWhilePrinting(t *testing.T) {
	backend := newRecordingBackend(true)
	backend.entered = make(chan string, 1)
	backend.release = make(chan struct{})
	sched := core.NewScheduler(core.WithBackend(backend))
	sched.Start()
	defer sched.Stop()

	job, bus := newJobWithBus("doc")
	job.SetPayload([]byte("hello"))
	require.True(t, sched.Submit(job))

	select {
	case <-backend.entered:
	case <-time.After(waitFor):
		t.Fatal("backend was never called")
	}
	assert.Equal(t, core.JobStatePrinting, job.State())
	require.True(t, job.Cancel())
	close(backend.release)

	require.Eventually(t, func() bool {
		return len(backend.Order()) == 1 && bus.Len() == 6
	}, waitFor, time.Millisecond)

	assert.Equal(t, core.JobStateCanceled, job.State())
	last := bus.Snapshot()[5]
	assert.Equal(t, core.EventRejectedTransition, last.Kind)
	assert.Equal(t, core.JobStateCanceled, last.From)
	assert.Equal(t, core.JobStateCompleted, last.To)
}

func TestScheduler_StopThenSubmit(t *testing.T) {
	sched := core.NewScheduler()
	sched.Start()
	sched.Stop()

	job := core.NewJob("doc")
	assert.False(t, sched.Submit(job))
	assert.Equal(t, core.JobStateCreated, job.State())
	assert.False(t, sched.Running())
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	sched := core.NewScheduler()
	sched.Stop()

	assert.False(t, sched.Submit(core.NewJob("doc")))

	sched.Start()
	assert.False(t, sched.Running())
}

func TestScheduler_SubmitNil(t *testing.T) {
	sched := core.NewScheduler()

	assert.False(t, sched.Submit(nil))
	assert.Equal(t, 0, sched.Pending())
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	sched := core.NewScheduler()

	sched.Start()
	sched.Start()
	assert.True(t, sched.Running())

	sched.Stop()
	sched.Stop()
	assert.False(t, sched.Running())
}

func TestScheduler_StopDropsQueuedJobs(t *testing.T) {
	backend := newRecordingBackend(true)
	backend.entered = make(chan string, 1)
	backend.release = make(chan struct{})
	sched := core.NewScheduler(core.WithBackend(backend))
	sched.Start()

	first := core.NewJob("first")
	second := core.NewJob("second")
	require.True(t, sched.Submit(first))
	<-backend.entered
	require.True(t, sched.Submit(second))

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		return !sched.Submit(core.NewJob("probe"))
	}, waitFor, time.Millisecond)
	close(backend.release)

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, core.JobStateCompleted, first.State())
	assert.Equal(t, core.JobStateCreated, second.State())
	assert.Equal(t, 0, sched.Pending())
	assert.Equal(t, []string{"first"}, backend.Order())
}

func TestScheduler_ConcurrentCancelRace(t *testing.T) {
	backend := newRecordingBackend(true)
	sched := core.NewScheduler(core.WithBackend(backend))
	sched.Start()
	defer sched.Stop()

	const n = 20
	jobs := make([]*core.Job, n)
	for i := range jobs {
		jobs[i] = core.NewJob("race")
		jobs[i].SetEventBus(core.NewEventBus())
		require.True(t, sched.Submit(jobs[i]))
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		for k := 0; k < 4; k++ {
			wg.Add(1)
			go func(job *core.Job) {
				defer wg.Done()
				job.Cancel()
			}(job)
		}
	}
	wg.Wait()

	for _, job := range jobs {
		waitTerminal(t, job)
		state := job.State()
		assert.True(t, state == core.JobStateCanceled || state == core.JobStateCompleted, state.String())

		var toCanceled int
		for _, ev := range job.EventBus().Snapshot() {
			if ev.Kind == core.EventStateChanged && ev.To == core.JobStateCanceled {
				toCanceled++
			}
		}
		if state == core.JobStateCanceled {
			assert.Equal(t, 1, toCanceled)
		} else {
			assert.Equal(t, 0, toCanceled)
		}
	}
}
