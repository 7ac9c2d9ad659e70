package core

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Scheduler owns a FIFO of submitted jobs and a single worker goroutine that
// drives each job through the whole pipeline before taking the next one.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Job
	spooler Spooler
	backend Backend
	logger  hclog.Logger

	running bool
	stopped bool
	doneCh  chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithSpooler(sp Spooler) SchedulerOption {
	return func(s *Scheduler) { s.spooler = sp }
}

func WithBackend(b Backend) SchedulerOption {
	return func(s *Scheduler) { s.backend = b }
}

func WithLogger(l hclog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler using a TextSpooler and no backend unless
// options say otherwise.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		spooler: NewTextSpooler(),
		logger:  hclog.NewNullLogger(),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSpooler replaces the spooler. A nil spooler makes every job fail at
// the spooling stage.
func (s *Scheduler) SetSpooler(sp Spooler) {
	s.mu.Lock()
	s.spooler = sp
	s.mu.Unlock()
}

// SetBackend replaces the backend. A nil backend makes every job fail at
// the printing stage.
func (s *Scheduler) SetBackend(b Backend) {
	s.mu.Lock()
	s.backend = b
	s.mu.Unlock()
}

// Start launches the worker. Calling it again, or after Stop, does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return
	}
	s.running = true
	s.doneCh = make(chan struct{})

	go s.worker(s.doneCh)
}

// Stop refuses further submissions, wakes the worker and waits for it to
// return. Jobs still queued are dropped in whatever state they are in.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	doneCh := s.doneCh
	s.cond.Broadcast()
	s.mu.Unlock()

	if wasRunning {
		<-doneCh
	}

	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped", "dropped", dropped)
}

// Submit queues a job for processing. It returns false for a nil job or
// once Stop has been called.
func (s *Scheduler) Submit(job *Job) bool {
	if job == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.queue = append(s.queue, job)
	s.cond.Signal()
	return true
}

// Pending returns the number of jobs waiting to be dequeued.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) worker(doneCh chan struct{}) {
	defer close(doneCh)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		spooler, backend := s.spooler, s.backend
		s.mu.Unlock()

		s.processJob(job, spooler, backend)
	}
}

func (s *Scheduler) processJob(job *Job, spooler Spooler, backend Backend) {
	logger := s.logger.With("job", job.Name())

	if job.State() == JobStateCreated {
		job.Enqueue()
	}

	if !job.Schedule() {
		logger.Debug("job abandoned", "stage", "schedule", "state", job.State())
		return
	}
	if !job.StartSpooling() {
		logger.Debug("job abandoned", "stage", "spool", "state", job.State())
		return
	}

	if spooler == nil {
		s.failJob(logger, job, "no spooler configured")
		return
	}
	res := spoolSafely(spooler, job)
	if !res.OK {
		s.failJob(logger, job, res.Err)
		return
	}
	if res.Buffer != nil {
		logger.Debug("job spooled", "bytes", len(res.Buffer.Bytes), "mime", res.Buffer.MIME)
	}

	if !job.StartPrinting() {
		logger.Debug("job abandoned", "stage", "print", "state", job.State())
		return
	}

	ok := false
	if backend != nil {
		ok = printSafely(backend, job, job.Payload())
	} else {
		logger.Warn("no backend configured")
	}
	if !ok {
		job.Fail()
		logger.Info("job failed", "stage", "print")
		return
	}

	// A cancel that landed while printing wins; Complete is then rejected.
	if job.Complete() {
		logger.Info("job completed")
	} else {
		logger.Info("job not completed", "state", job.State())
	}
}

func (s *Scheduler) failJob(logger hclog.Logger, job *Job, reason string) {
	if !IsTerminal(job.State()) {
		job.Fail()
	}
	logger.Info("job failed", "stage", "spool", "reason", reason)
}

func spoolSafely(sp Spooler, job *Job) (res SpoolResult) {
	defer func() {
		if r := recover(); r != nil {
			res = SpoolResult{OK: false, Err: fmt.Sprintf("spooler panic: %v", r)}
		}
	}()
	return sp.Spool(job)
}

func printSafely(b Backend, job *Job, payload []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return b.Print(job, payload)
}
