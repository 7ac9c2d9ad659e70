package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/orrn/printpipe/internal/core"
	"github.com/orrn/printpipe/internal/db"
)

type EventHistory interface {
	ListEvents(ctx context.Context, filter db.EventFilter) ([]*db.JobEvent, error)
}

type ListEventsQuery struct {
	JobName string `form:"job_name"`
	Kind    string `form:"kind"`
	Limit   int    `form:"limit" binding:"min=0,max=1000"`
	Offset  int    `form:"offset" binding:"min=0"`
}

type EventHandler struct {
	bus     *core.EventBus
	history EventHistory
	logger  hclog.Logger
}

// NewEventHandler serves the live bus and, when history is non-nil, the
// journaled events.
func NewEventHandler(bus *core.EventBus, history EventHistory, logger hclog.Logger) *EventHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EventHandler{
		bus:     bus,
		history: history,
		logger:  logger,
	}
}

func (h *EventHandler) ListLive(c *gin.Context) {
	events := h.bus.Snapshot()
	if kind := c.Query("kind"); kind != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Kind.String() == kind {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	c.JSON(http.StatusOK, events)
}

func (h *EventHandler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event journal is disabled"})
		return
	}

	var query ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.history.ListEvents(c.Request.Context(), db.EventFilter{
		JobName: query.JobName,
		Kind:    query.Kind,
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
	if err != nil {
		h.logger.Error("failed to list journaled events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}

	if events == nil {
		events = []*db.JobEvent{}
	}
	c.JSON(http.StatusOK, events)
}

func RegisterEventRoutes(r *gin.RouterGroup, h *EventHandler) {
	r.GET("/events", h.ListLive)
	r.GET("/events/history", h.ListHistory)
}
