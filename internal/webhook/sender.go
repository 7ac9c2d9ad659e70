package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/orrn/printpipe/internal/core"
)

type Event string

const (
	EventJobStarted   Event = "job_started"
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventJobCanceled  Event = "job_canceled"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
)

type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      JobData   `json:"data"`
	Signature string    `json:"signature,omitempty"`
}

type JobData struct {
	JobName    string    `json:"job_name"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Endpoint struct {
	URL    string
	Secret string
	// Events limits delivery to these events; empty means all of them.
	Events []string
}

func (e Endpoint) wants(ev Event) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, name := range e.Events {
		if name == string(ev) {
			return true
		}
	}
	return false
}

type Config struct {
	Endpoints  []Endpoint
	RetryCount int
	RetryDelay time.Duration
	Timeout    time.Duration
	Workers    int
	QueueSize  int
}

type task struct {
	endpoint Endpoint
	payload  *Payload
	attempt  int
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %d", e.code)
}

// Sender posts job milestones to the configured endpoints from a small pool
// of workers.
type Sender struct {
	endpoints  []Endpoint
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	workers    int
	logger     hclog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	queue   chan *task
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewSender(cfg Config, logger hclog.Logger) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Sender{
		endpoints: cfg.Endpoints,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		workers:    cfg.Workers,
		logger:     logger,
		queue:      make(chan *task, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop delivers what is already queued, without waiting between retries,
// and then returns.
func (s *Sender) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopCh)
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// Notify queues a delivery for every state change that maps to a webhook
// event. Rejected transitions are ignored.
func (s *Sender) Notify(events []core.JobEvent) {
	for _, ev := range events {
		name, ok := eventFor(ev)
		if !ok {
			continue
		}

		for _, ep := range s.endpoints {
			if !ep.wants(name) {
				continue
			}
			s.enqueue(&task{
				endpoint: ep,
				payload: &Payload{
					Event:     string(name),
					Timestamp: time.Now(),
					Data: JobData{
						JobName:    ev.JobName,
						From:       ev.From.String(),
						To:         ev.To.String(),
						OccurredAt: ev.Timestamp,
					},
				},
			})
		}
	}
}

func eventFor(ev core.JobEvent) (Event, bool) {
	if ev.Kind != core.EventStateChanged {
		return "", false
	}

	switch ev.To {
	case core.JobStatePrinting:
		return EventJobStarted, true
	case core.JobStateCompleted:
		return EventJobCompleted, true
	case core.JobStateFailed:
		return EventJobFailed, true
	case core.JobStateCanceled:
		return EventJobCanceled, true
	default:
		return "", false
	}
}

func (s *Sender) enqueue(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn("sender stopped, dropping webhook", "url", t.endpoint.URL, "event", t.payload.Event)
		return
	}

	select {
	case s.queue <- t:
	default:
		s.logger.Warn("queue full, dropping webhook", "url", t.endpoint.URL, "event", t.payload.Event)
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for t := range s.queue {
		if err := s.sendWithRetry(t); err != nil {
			s.logger.Error("failed to send webhook",
				"worker", id, "url", t.endpoint.URL, "event", t.payload.Event, "attempts", t.attempt, "error", err)
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(t.endpoint, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			s.logger.Debug("retrying webhook", "url", t.endpoint.URL, "attempt", t.attempt, "in", backoff, "error", err)

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested: %w", lastErr)
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(ep Endpoint, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if ep.Secret != "" {
		payload.Signature = Sign(dataBytes, ep.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, payload.Signature)
	req.Header.Set(EventHeader, payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of data, the value receivers compare
// against the signature header.
func Sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
