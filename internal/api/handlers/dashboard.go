package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printpipe/internal/core"
	"github.com/orrn/printpipe/internal/registry"
)

type SchedulerStatus interface {
	Pending() int
	Running() bool
}

// EventCounter reports how many events the journal holds.
type EventCounter interface {
	CountEvents(ctx context.Context) (int64, error)
}

type DashboardStats struct {
	Jobs             int            `json:"jobs"`
	ByState          map[string]int `json:"by_state"`
	QueueDepth       int            `json:"queue_depth"`
	SchedulerRunning bool           `json:"scheduler_running"`
	BufferedEvents   int            `json:"buffered_events"`
	JournaledEvents  *int64         `json:"journaled_events,omitempty"`
}

type DashboardHandler struct {
	registry  *registry.Registry
	scheduler SchedulerStatus
	journal   EventCounter
	endpoints []string
}

// NewDashboardHandler builds the dashboard. journal may be nil when events
// are not journaled.
func NewDashboardHandler(reg *registry.Registry, scheduler SchedulerStatus, journal EventCounter, endpoints []string) *DashboardHandler {
	return &DashboardHandler{
		registry:  reg,
		scheduler: scheduler,
		journal:   journal,
		endpoints: endpoints,
	}
}

func (h *DashboardHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "PrintPipe Server",
		"status":    "running",
		"endpoints": h.endpoints,
	})
}

func (h *DashboardHandler) GetStats(c *gin.Context) {
	entries, err := h.registry.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	stats := DashboardStats{
		Jobs:             len(entries),
		ByState:          make(map[string]int),
		QueueDepth:       h.scheduler.Pending(),
		SchedulerRunning: h.scheduler.Running(),
		BufferedEvents:   h.registry.Bus().Len(),
	}
	for s := core.JobStateCreated; s <= core.JobStateFailed; s++ {
		stats.ByState[s.String()] = 0
	}
	for _, entry := range entries {
		stats.ByState[entry.Job.State().String()]++
	}

	if h.journal != nil {
		n, err := h.journal.CountEvents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count journaled events"})
			return
		}
		stats.JournaledEvents = &n
	}

	c.JSON(http.StatusOK, stats)
}

func RegisterDashboardRoutes(router *gin.Engine, h *DashboardHandler) {
	router.GET("/", h.Info)
	router.GET("/api/stats", h.GetStats)
}
