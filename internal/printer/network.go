package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/orrn/printpipe/internal/core"
)

var (
	ErrConnectionFailed   = errors.New("connection failed")
	ErrInvalidStatus      = errors.New("invalid status response")
	ErrPrinterCannotPrint = errors.New("printer cannot print in current state")
)

const (
	DefaultPort          = 9100
	statusCommand        = "\x1b!?"
	statusResponseLength = 4
	defaultTimeout       = 10 * time.Second
	defaultWatchInterval = 30 * time.Second
)

var printerStateMap = map[byte]string{
	'@': "normal",
	'F': "feeding",
	'P': "paused",
	'E': "error",
	'H': "head_open",
	'S': "standby",
	'L': "label_waiting",
	'I': "idle",
}

var warningMap = map[byte]string{
	'@': "none",
	'A': "paper_low",
	'B': "ribbon_low",
	'C': "paper_and_ribbon_low",
}

var errorMap = map[byte]string{
	'@': "none",
	'A': "head_overheat",
	'B': "motor_overheat",
	'C': "head_and_motor_overheat",
	'D': "head_error",
	'E': "cutter_error",
	'F': "rtc_error",
}

var mediaErrorMap = map[byte]string{
	'@': "none",
	'A': "paper_empty",
	'B': "ribbon_empty",
	'C': "paper_and_ribbon_empty",
	'D': "takeup_reel_full",
	'`': "head_open",
}

type Status struct {
	RawStatus    [4]byte   `json:"-"`
	PrinterState string    `json:"printer_state"`
	Warning      string    `json:"warning"`
	Error        string    `json:"error"`
	MediaError   string    `json:"media_error"`
	IsOnline     bool      `json:"is_online"`
	CanPrint     bool      `json:"can_print"`
	LastChecked  time.Time `json:"last_checked"`
}

// Renderer turns a job payload into the bytes sent to the printer.
type Renderer interface {
	Render(job *core.Job, payload []byte) ([]byte, error)
}

type RawRenderer struct{}

func (RawRenderer) Render(_ *core.Job, payload []byte) ([]byte, error) {
	return payload, nil
}

type Config struct {
	Addr        string
	Timeout     time.Duration
	CheckStatus bool
	Renderer    Renderer
}

// NetworkBackend delivers jobs to a raw TCP (port 9100) printer. Each job
// uses its own connection.
type NetworkBackend struct {
	addr        string
	timeout     time.Duration
	checkStatus bool
	renderer    Renderer
	logger      hclog.Logger

	mu      sync.Mutex
	printed atomic.Int64

	healthMu sync.Mutex
	health   string
}

func NewNetworkBackend(cfg Config, logger hclog.Logger) *NetworkBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Renderer == nil {
		cfg.Renderer = RawRenderer{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &NetworkBackend{
		addr:        cfg.Addr,
		timeout:     cfg.Timeout,
		checkStatus: cfg.CheckStatus,
		renderer:    cfg.Renderer,
		logger:      logger,
		health:      "unknown",
	}
}

func (b *NetworkBackend) Addr() string {
	return b.addr
}

// Printed reports how many jobs were delivered successfully.
func (b *NetworkBackend) Printed() int64 {
	return b.printed.Load()
}

func (b *NetworkBackend) Print(job *core.Job, payload []byte) bool {
	logger := b.logger.With("job", job.Name(), "addr", b.addr)

	if err := b.send(job, payload); err != nil {
		logger.Error("failed to print", "error", err)
		return false
	}

	b.printed.Add(1)
	logger.Debug("job delivered", "bytes", len(payload))
	return true
}

func (b *NetworkBackend) send(job *core.Job, payload []byte) error {
	data, err := b.renderer.Render(job, payload)
	if err != nil {
		return fmt.Errorf("failed to render job: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.checkStatus {
		status, err := b.queryStatus()
		if err != nil {
			return err
		}
		if !status.CanPrint {
			return fmt.Errorf("%w: %s", ErrPrinterCannotPrint, status.PrinterState)
		}
	}

	conn, err := b.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(b.timeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Watch polls the printer status every interval until ctx is done and logs
// each change of summary.
func (b *NetworkBackend) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.checkHealth()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.checkHealth()
		}
	}
}

// Health returns the summary seen by the last Watch poll.
func (b *NetworkBackend) Health() string {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	return b.health
}

func (b *NetworkBackend) checkHealth() {
	status, err := b.Status()
	summary := "offline"
	if status != nil {
		summary = status.Summary()
	}

	b.healthMu.Lock()
	prev := b.health
	b.health = summary
	b.healthMu.Unlock()

	if prev == summary {
		return
	}
	if err != nil {
		b.logger.Warn("printer status changed", "addr", b.addr, "from", prev, "to", summary, "error", err)
		return
	}
	b.logger.Info("printer status changed", "addr", b.addr, "from", prev, "to", summary)
}

// Status asks the printer for its four-byte status report.
func (b *NetworkBackend) Status() (*Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queryStatus()
}

func (b *NetworkBackend) queryStatus() (*Status, error) {
	offline := &Status{LastChecked: time.Now()}

	conn, err := b.dial()
	if err != nil {
		return offline, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(b.timeout))
	if _, err := conn.Write([]byte(statusCommand)); err != nil {
		return offline, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	response := make([]byte, statusResponseLength)
	if _, err := io.ReadFull(conn, response); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return offline, ErrInvalidStatus
		}
		return offline, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	status := parseStatus(response)
	status.IsOnline = true
	status.LastChecked = time.Now()
	status.CanPrint = status.PrinterState == "normal" || status.PrinterState == "standby" || status.PrinterState == "idle"
	return status, nil
}

func (b *NetworkBackend) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", b.addr, b.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return conn, nil
}

func parseStatus(response []byte) *Status {
	status := &Status{
		RawStatus: [4]byte{response[0], response[1], response[2], response[3]},
	}

	status.PrinterState = lookup(printerStateMap, response[0])
	status.Warning = lookup(warningMap, response[1])
	status.Error = lookup(errorMap, response[2])
	status.MediaError = lookup(mediaErrorMap, response[3])
	return status
}

func lookup(m map[byte]string, b byte) string {
	if v, ok := m[b]; ok {
		return v
	}
	return "unknown"
}

// Summary collapses a status report into one word.
func (s *Status) Summary() string {
	switch {
	case !s.IsOnline:
		return "offline"
	case s.PrinterState == "error" || s.Error != "none":
		return "error"
	case s.PrinterState == "paused":
		return "paused"
	case s.MediaError != "none":
		return "error"
	case s.PrinterState == "feeding":
		return "busy"
	default:
		return "online"
	}
}
