package registry_test

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/orrn/printpipe/internal/core"
	"github.com/orrn/printpipe/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) (*registry.Registry, *core.EventBus) {
	t.Helper()
	bus := core.NewEventBus()
	reg, err := registry.New(bus, "out")
	require.NoError(t, err)
	return reg, bus
}

func TestRegistry_Create(t *testing.T) {
	reg, bus := newRegistry(t)

	entry, err := reg.Create("invoice", []byte("total: 42"))
	require.NoError(t, err)

	assert.Equal(t, "job-000001", entry.ID)
	assert.Equal(t, "invoice", entry.Name)
	assert.Equal(t, filepath.Join("out", "invoice.txt"), entry.OutputFile)
	assert.Equal(t, core.JobStateCreated, entry.Job.State())
	assert.Equal(t, []byte("total: 42"), entry.Job.Payload())
	assert.Same(t, bus, entry.Job.EventBus())
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRegistry_CreateDefaultsName(t *testing.T) {
	reg, _ := newRegistry(t)

	entry, err := reg.Create("", nil)
	require.NoError(t, err)
	assert.Equal(t, registry.DefaultName, entry.Name)
	assert.Equal(t, registry.DefaultName, entry.Job.Name())
}

func TestRegistry_Get(t *testing.T) {
	reg, _ := newRegistry(t)

	created, err := reg.Create("doc", nil)
	require.NoError(t, err)

	got, err := reg.Get(created.ID)
	require.NoError(t, err)
	assert.Same(t, created, got)

	_, err = reg.Get("job-999999")
	assert.ErrorIs(t, err, registry.ErrJobNotFound)
}

func TestRegistry_ListAndByName(t *testing.T) {
	reg, _ := newRegistry(t)

	for _, name := range []string{"a", "b", "a"} {
		_, err := reg.Create(name, nil)
		require.NoError(t, err)
	}

	all, err := reg.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job-000001", all[0].ID)
	assert.Equal(t, "job-000003", all[2].ID)

	named, err := reg.ByName("a")
	require.NoError(t, err)
	require.Len(t, named, 2)
	assert.Equal(t, "job-000001", named[0].ID)
	assert.Equal(t, "job-000003", named[1].ID)

	none, err := reg.ByName("zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegistry_ListEmpty(t *testing.T) {
	reg, _ := newRegistry(t)

	all, err := reg.List()
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
	assert.Zero(t, reg.Len())
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	reg, _ := newRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Create(fmt.Sprintf("doc-%d", i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := reg.List()
	require.NoError(t, err)
	assert.Len(t, all, 50)

	seen := make(map[string]bool)
	for _, e := range all {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestEntry_MarkSubmitted(t *testing.T) {
	reg, _ := newRegistry(t)
	entry, err := reg.Create("doc", nil)
	require.NoError(t, err)

	assert.False(t, entry.Submitted())
	assert.True(t, entry.MarkSubmitted())
	assert.False(t, entry.MarkSubmitted())
	assert.True(t, entry.Submitted())

	entry.UnmarkSubmitted()
	assert.True(t, entry.MarkSubmitted())
}
