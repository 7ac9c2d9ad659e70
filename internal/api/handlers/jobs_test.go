package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/printpipe/internal/api/handlers"
	"github.com/orrn/printpipe/internal/core"
	"github.com/orrn/printpipe/internal/registry"
)

const waitFor = 2 * time.Second

func init() {
	gin.SetMode(gin.TestMode)
}

func pass(c *gin.Context) { c.Next() }

func newJobRouter(t *testing.T, sched handlers.Submitter) (*gin.Engine, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(core.NewEventBus(), t.TempDir())
	require.NoError(t, err)

	r := gin.New()
	handlers.RegisterJobRoutes(r.Group("/api"), handlers.NewJobHandler(reg, sched, nil), pass, pass)
	return r, reg
}

func post(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w
}

func TestSubmitJob_SecondSubmitRefused(t *testing.T) {
	sched := core.NewScheduler(core.WithBackend(core.NewFileBackend(t.TempDir(), nil)))
	router, reg := newJobRouter(t, sched)

	entry, err := reg.Create("doc", []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, post(router, "/api/jobs/"+entry.ID+"/submit").Code)
	assert.Equal(t, http.StatusBadRequest, post(router, "/api/jobs/"+entry.ID+"/submit").Code)
	assert.Equal(t, 1, sched.Pending())

	sched.Start()
	defer sched.Stop()
	require.Eventually(t, func() bool {
		return entry.Job.State() == core.JobStateCompleted
	}, waitFor, 10*time.Millisecond)

	for _, ev := range reg.Bus().Snapshot() {
		assert.Equal(t, core.EventStateChanged, ev.Kind, "unexpected %s %s -> %s", ev.Kind, ev.From, ev.To)
	}
}

func TestSubmitJob_RefusedBySchedulerCanRetry(t *testing.T) {
	sched := core.NewScheduler()
	sched.Stop()
	router, reg := newJobRouter(t, sched)

	entry, err := reg.Create("doc", nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, post(router, "/api/jobs/"+entry.ID+"/submit").Code)
	assert.False(t, entry.Submitted())
	assert.Equal(t, core.JobStateCreated, entry.Job.State())
}

func TestSubmitJob_Unknown(t *testing.T) {
	router, _ := newJobRouter(t, core.NewScheduler())

	assert.Equal(t, http.StatusBadRequest, post(router, "/api/jobs/job-000042/submit").Code)
}
