package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/orrn/printpipe/internal/core"
)

const (
	tableJobs   = "jobs"
	DefaultName = "untitled"
)

var ErrJobNotFound = errors.New("job not found")

// Entry is a job known to the registry. Seq is the numeric part of ID and
// gives the listing order.
type Entry struct {
	ID         string
	Seq        uint64
	Name       string
	Job        *core.Job
	OutputFile string
	CreatedAt  time.Time

	submitted atomic.Bool
}

// MarkSubmitted claims the entry for the scheduler. Only the first caller
// gets true.
func (e *Entry) MarkSubmitted() bool {
	return e.submitted.CompareAndSwap(false, true)
}

// UnmarkSubmitted releases a claim the scheduler refused.
func (e *Entry) UnmarkSubmitted() {
	e.submitted.Store(false)
}

func (e *Entry) Submitted() bool {
	return e.submitted.Load()
}

// Registry is an in-memory index of jobs. Every job it creates publishes to
// the same EventBus.
type Registry struct {
	db     *memdb.MemDB
	bus    *core.EventBus
	outDir string
	nextID atomic.Uint64
}

func jobsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: tableJobs,
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name:         "id",
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			"seq": {
				Name:         "seq",
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.UintFieldIndex{
					Field: "Seq",
				},
			},
			"name": {
				Name:         "name",
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "Name",
				},
			},
		},
	}
}

func New(bus *core.EventBus, outDir string) (*Registry, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableJobs: jobsTableSchema(),
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create job registry: %w", err)
	}

	if bus == nil {
		bus = core.NewEventBus()
	}

	return &Registry{
		db:     db,
		bus:    bus,
		outDir: outDir,
	}, nil
}

func (r *Registry) Bus() *core.EventBus {
	return r.bus
}

// Create builds a job in the Created state and records it.
func (r *Registry) Create(name string, payload []byte) (*Entry, error) {
	if name == "" {
		name = DefaultName
	}

	job := core.NewJob(name)
	job.SetEventBus(r.bus)
	job.SetPayload(payload)

	seq := r.nextID.Add(1)
	entry := &Entry{
		ID:         fmt.Sprintf("job-%06d", seq),
		Seq:        seq,
		Name:       name,
		Job:        job,
		OutputFile: filepath.Join(r.outDir, name+".txt"),
		CreatedAt:  time.Now(),
	}

	tx := r.db.Txn(true)
	defer tx.Abort()

	if err := tx.Insert(tableJobs, entry); err != nil {
		return nil, fmt.Errorf("failed inserting job: %w", err)
	}
	tx.Commit()

	return entry, nil
}

func (r *Registry) Get(id string) (*Entry, error) {
	tx := r.db.Txn(false)
	defer tx.Abort()

	raw, err := tx.First(tableJobs, "id", id)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	if raw == nil {
		return nil, ErrJobNotFound
	}
	return raw.(*Entry), nil
}

// List returns every job in creation order.
func (r *Registry) List() ([]*Entry, error) {
	return r.collect("seq")
}

// ByName returns the jobs sharing a name in creation order.
func (r *Registry) ByName(name string) ([]*Entry, error) {
	entries, err := r.collect("name", name)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

func (r *Registry) collect(index string, args ...interface{}) ([]*Entry, error) {
	tx := r.db.Txn(false)
	defer tx.Abort()

	iter, err := tx.Get(tableJobs, index, args...)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}

	entries := []*Entry{}
	for next := iter.Next(); next != nil; next = iter.Next() {
		entries = append(entries, next.(*Entry))
	}
	return entries, nil
}

func (r *Registry) Len() int {
	entries, err := r.List()
	if err != nil {
		return 0
	}
	return len(entries)
}
