package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/orrn/printpipe/internal/core"
	"github.com/orrn/printpipe/internal/db"
)

type Store interface {
	InsertEvents(ctx context.Context, events []*db.JobEvent) error
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Sink receives every batch of events after it has been stored.
type Sink interface {
	Notify(events []core.JobEvent)
}

type Config struct {
	FlushInterval time.Duration
	Retention     time.Duration
}

// Journal periodically drains an EventBus into a Store and hands each batch
// to its sinks. The store may be nil when only sinks are wanted.
type Journal struct {
	store     Store
	sinks     []Sink
	bus       *core.EventBus
	interval  time.Duration
	retention time.Duration
	logger    hclog.Logger

	mu       sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

func NewJournal(store Store, bus *core.EventBus, cfg Config, logger hclog.Logger) *Journal {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Journal{
		store:     store,
		bus:       bus,
		interval:  cfg.FlushInterval,
		retention: cfg.Retention,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// AddSink registers a sink. Call it before Start.
func (j *Journal) AddSink(s Sink) {
	j.mu.Lock()
	j.sinks = append(j.sinks, s)
	j.mu.Unlock()
}

func (j *Journal) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	go j.run()
}

// Stop ends the flush loop and writes whatever is still on the bus.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)

		j.mu.Lock()
		started := j.started
		j.mu.Unlock()
		if started {
			<-j.doneCh
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := j.Flush(ctx); err != nil {
			j.logger.Error("final journal flush failed", "error", err)
		}
	})
}

func (j *Journal) run() {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), j.interval)
			if _, err := j.Flush(ctx); err != nil {
				j.logger.Error("journal flush failed", "error", err)
			}
			cancel()
		}
	}
}

// Flush drains the bus, stores the events in one batch and passes them to
// the sinks. Events are put back on the bus if the store rejects them, so a
// later flush retries.
func (j *Journal) Flush(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	events := j.bus.Drain()
	if len(events) == 0 {
		return 0, j.prune(ctx)
	}

	if j.store != nil {
		rows := make([]*db.JobEvent, 0, len(events))
		for _, ev := range events {
			rows = append(rows, toRow(ev))
		}

		if err := j.store.InsertEvents(ctx, rows); err != nil {
			j.bus.Requeue(events)
			return 0, fmt.Errorf("failed to store %d events: %w", len(events), err)
		}
	}

	for _, sink := range j.sinks {
		sink.Notify(events)
	}

	j.logger.Debug("journal flushed", "events", len(events))
	return len(events), j.prune(ctx)
}

func (j *Journal) prune(ctx context.Context) error {
	if j.store == nil || j.retention <= 0 {
		return nil
	}

	removed, err := j.store.PruneEvents(ctx, time.Now().Add(-j.retention))
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}
	if removed > 0 {
		j.logger.Debug("journal pruned", "events", removed)
	}
	return nil
}

func toRow(ev core.JobEvent) *db.JobEvent {
	return &db.JobEvent{
		Kind:       ev.Kind.String(),
		JobName:    ev.JobName,
		FromState:  ev.From.String(),
		ToState:    ev.To.String(),
		Reason:     ev.Reason,
		OccurredAt: ev.Timestamp,
	}
}
